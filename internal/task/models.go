package task

import (
	"slices"
	"time"
)

// TaskType identifies which processor handles a task.
type TaskType string

const (
	TypeDocumentImport            TaskType = "document-import"
	TypeDocumentRegeneration      TaskType = "document-regeneration"
	TypeCdnResourcesConsolidation TaskType = "cdn-resources-consolidation"
)

// BatchType identifies the kind of batch; every batch holds tasks of the
// matching task type.
type BatchType string

const (
	BatchDocumentImport            BatchType = "document-import"
	BatchDocumentRegeneration      BatchType = "document-regeneration"
	BatchCdnResourcesConsolidation BatchType = "cdn-resources-consolidation"
)

// TaskType returns the task type created for batches of this type.
func (b BatchType) TaskType() TaskType { return TaskType(b) }

// Valid reports whether b is a known batch type.
func (b BatchType) Valid() bool {
	switch b {
	case BatchDocumentImport, BatchDocumentRegeneration, BatchCdnResourcesConsolidation:
		return true
	}
	return false
}

// DefaultMaxAttempts bounds how often a failing task is retried.
const DefaultMaxAttempts = 3

// TaskParams carries the per-task input. Key is the document id for every
// task type; the revisions are only set for imports.
type TaskParams struct {
	Key                string `bson:"key" json:"key"`
	ImportedRevision   int    `bson:"importedRevision,omitempty" json:"importedRevision,omitempty"`
	ImportableRevision int    `bson:"importableRevision,omitempty" json:"importableRevision,omitempty"`
}

// BatchParams carries input shared by every task in a batch.
type BatchParams struct {
	ImportSourceName string `bson:"importSourceName,omitempty" json:"importSourceName,omitempty"`
}

// SerializedError is the persisted form of a processing error.
type SerializedError struct {
	Type    string `bson:"type" json:"type"`
	Message string `bson:"message" json:"message"`
	Cause   string `bson:"cause,omitempty" json:"cause,omitempty"`
}

// Attempt records one run of a task.
type Attempt struct {
	StartedOn   time.Time         `bson:"startedOn" json:"startedOn"`
	CompletedOn time.Time         `bson:"completedOn" json:"completedOn"`
	Errors      []SerializedError `bson:"errors" json:"errors"`
}

// Succeeded reports whether the attempt finished without errors.
func (a Attempt) Succeeded() bool { return len(a.Errors) == 0 }

// Task is a persisted unit of asynchronous work.
type Task struct {
	ID         string     `bson:"_id" json:"id"`
	BatchID    string     `bson:"batchId" json:"batchId"`
	TaskType   TaskType   `bson:"taskType" json:"taskType"`
	Processed  bool       `bson:"processed" json:"processed"`
	Attempts   []Attempt  `bson:"attempts" json:"attempts"`
	TaskParams TaskParams `bson:"taskParams" json:"taskParams"`
}

// Failed reports whether the task is processed and its last attempt failed.
func (t *Task) Failed() bool {
	if !t.Processed || len(t.Attempts) == 0 {
		return false
	}
	return !t.Attempts[len(t.Attempts)-1].Succeeded()
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	c := *t
	c.Attempts = make([]Attempt, len(t.Attempts))
	for i, a := range t.Attempts {
		a.Errors = slices.Clone(a.Errors)
		c.Attempts[i] = a
	}
	return &c
}

// Batch groups the tasks created by one request.
type Batch struct {
	ID              string      `bson:"_id" json:"id"`
	CreatedBy       string      `bson:"createdBy" json:"createdBy"`
	CreatedOn       time.Time   `bson:"createdOn" json:"createdOn"`
	CompletedOn     *time.Time  `bson:"completedOn" json:"completedOn"`
	BatchType       BatchType   `bson:"batchType" json:"batchType"`
	BatchParams     BatchParams `bson:"batchParams" json:"batchParams"`
	TaskCount       int         `bson:"taskCount" json:"taskCount"`
	FailedTaskCount int         `bson:"failedTaskCount" json:"failedTaskCount"`
}

// Completed reports whether the batch has been closed.
func (b *Batch) Completed() bool { return b.CompletedOn != nil }

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	c := *b
	if b.CompletedOn != nil {
		t := *b.CompletedOn
		c.CompletedOn = &t
	}
	return &c
}
