package types

import "time"

// Default judging limits applied when a problem does not define its own.
const (
	DefaultTimeLimit   int64 = 2000
	DefaultMemoryLimit int64 = 256
)

// Problem represents a coding problem as supplied by the problem catalog.
// The judging core only relies on the limits, the testcases and the author.
type Problem struct {
	// ID is the unique identifier of the problem.
	ID int `json:"id" db:"id"`

	// AuthorID identifies the problemsetter who owns the problem. The
	// author always sees hidden testcases.
	AuthorID int `json:"author_id" db:"author_id"`

	// Title is the human-readable name of the problem.
	Title string `json:"title" db:"title"`

	// Description contains the full problem statement.
	Description string `json:"description" db:"description"`

	// Difficulty is a free-form difficulty label (e.g. "Easy").
	Difficulty string `json:"difficulty" db:"difficulty"`

	// TimeLimit is the maximum allowed execution time per test case,
	// expressed in milliseconds.
	TimeLimit int64 `json:"time_limit" db:"time_limit"`

	// MemoryLimit is the maximum allowed memory usage per submission,
	// expressed in megabytes.
	MemoryLimit int64 `json:"memory_limit" db:"memory_limit"`

	// Testcases is the ordered list of testcases. It is empty when the
	// testcases live in an object-storage bundle and have not been loaded.
	Testcases []Testcase `json:"testcases" db:"testcases"`

	// TestcaseBundle references a testcase archive in object storage.
	// It is nil for problems whose testcases are stored inline.
	TestcaseBundle *TestcaseBundle `json:"testcase_bundle,omitempty" db:"testcase_bundle"`

	// Tags are free-form labels associated with the problem.
	Tags []string `json:"tags" db:"tags"`

	// CreatedAt is the timestamp at which the problem was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the problem.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Limits returns the problem's time and memory limits, substituting the
// defaults for unset values.
func (p Problem) Limits() (timeLimit, memoryLimit int64) {
	timeLimit, memoryLimit = p.TimeLimit, p.MemoryLimit
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimit
	}
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}
	return timeLimit, memoryLimit
}

// TestcaseBundle references a tar.gz archive of testcases kept in object
// storage. Entries are named <order>.in and <order>.out.
type TestcaseBundle struct {
	// ObjectKey is the key of the archive in object storage.
	ObjectKey string `json:"object_key"`

	// SHA256 is the hex-encoded SHA-256 hash of the archive contents.
	SHA256 string `json:"sha256"`

	// Count is the number of testcases in the archive.
	Count int `json:"count"`

	// Visible lists the orders of the testcases shown to every user.
	Visible []int `json:"visible"`
}

// Testcase represents a single input/output pair used to evaluate a submission.
type Testcase struct {
	// Input is the input data provided to the user's program.
	Input string `json:"input"`

	// Output is the expected output produced by a correct solution.
	Output string `json:"output"`

	// Visible marks sample testcases that every user may see. Hidden
	// testcases are only exposed to admins and the problem author.
	Visible bool `json:"visible"`
}
