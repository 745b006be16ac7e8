// Package model defines the core entities coordinated by the service:
// sources, stores, feature sets, and the ingestion jobs that connect them.
package model

import "fmt"

// SourceType identifies the kind of stream a Source reads from.
type SourceType string

const (
	SourceKafka SourceType = "KAFKA"
)

// Source is a stream origin. Coordination identity is (Type, Config), not ID:
// two Source rows with the same type and config are the same source for
// scheduling purposes, however many times they were registered.
type Source struct {
	ID     string
	Type   SourceType
	Config SourceConfig
}

// SourceConfig holds the type-specific connection tuple for a Source.
type SourceConfig struct {
	BootstrapServers string
	Topic            string
}

// Key returns the business key used to canonicalize and group sources.
func (s Source) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.Type, s.Config.BootstrapServers, s.Config.Topic)
}

// Equal reports whether two sources share the same business key.
func (s Source) Equal(other Source) bool {
	return s.Key() == other.Key()
}

// Subscription is a glob pattern pair matched against feature set
// (project, name) identity. "*" matches any non-empty segment value.
type Subscription struct {
	Project string
	Name    string
}

// Store is a sink with a set of subscriptions describing which feature
// sets it wants delivered to jobs writing to it.
type Store struct {
	Name          string
	Config        map[string]string
	Subscriptions []Subscription
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobAborting  JobStatus = "ABORTING"
	JobAborted   JobStatus = "ABORTED"
	JobError     JobStatus = "ERROR"
	JobCompleted JobStatus = "COMPLETED"
)

// terminalJobStatuses are statuses from which a job will never resume
// normal operation; the reconciler treats them as needing replacement.
var terminalJobStatuses = map[JobStatus]bool{
	JobAborted:   true,
	JobError:     true,
	JobCompleted: true,
}

// IsTerminal reports whether a job in this status is done for good.
func (s JobStatus) IsTerminal() bool {
	return terminalJobStatuses[s]
}

// Runner identifies the backend that executes a Job.
type Runner string

const (
	RunnerDocker Runner = "DOCKER"
)

// Job is one running (or terminated) ingestion process reading Source and
// writing Store, carrying the feature sets currently delivered to it.
type Job struct {
	ID           string
	ExtID        string
	Runner       Runner
	Source       Source
	Store        Store
	Status       JobStatus
	JobStatuses  []*FeatureSetJobStatus
	LastUpdated  int64 // unix seconds, set by the repository on write
}

// Key returns the business key the reconciler groups jobs by: a job is
// uniquely identified, for coordination purposes, by which source feeds
// which store - not by surrogate ID.
func (j Job) Key() string {
	return fmt.Sprintf("%s|%s", j.Source.Key(), j.Store.Name)
}

// MembersEqual reports whether the set of feature set references attached
// to this job is identical to the given set, ignoring order.
func (j Job) MembersEqual(refs map[string]bool) bool {
	if len(j.JobStatuses) != len(refs) {
		return false
	}
	for _, js := range j.JobStatuses {
		if js.FeatureSetRef == "" || !refs[js.FeatureSetRef] {
			return false
		}
	}
	return true
}

// DeliveryStatus tracks whether a feature set's current spec has reached
// a given job.
type DeliveryStatus string

const (
	DeliveryInProgress DeliveryStatus = "IN_PROGRESS"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
)

// FeatureSetStatus is the publication state of a FeatureSet.
type FeatureSetStatus string

const (
	FeatureSetPending FeatureSetStatus = "PENDING"
	FeatureSetReady   FeatureSetStatus = "READY"
)

// FeatureSetJobStatus is the link record between a FeatureSet and a Job:
// the single source of truth for whether a given spec version has been
// delivered to and acknowledged by that job.
type FeatureSetJobStatus struct {
	FeatureSetRef  string // "<project>/<name>"
	JobID          string
	Version        int
	DeliveryStatus DeliveryStatus
}

// FeatureSet is a versioned schema published to the jobs that ingest it.
type FeatureSet struct {
	Project     string
	Name        string
	Version     int
	Status      FeatureSetStatus
	Source      Source
	JobStatuses []*FeatureSetJobStatus
}

// Reference returns the "<project>/<name>" identity used as the message
// bus partition key and as the lookup key for ack processing.
func (f FeatureSet) Reference() string {
	return f.Project + "/" + f.Name
}
