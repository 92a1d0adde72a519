package release

// FileKind is the checker policy derived from a configuration file name.
type FileKind string

const (
	// KindConfig is a generic server configuration fragment (*.local).
	KindConfig FileKind = "config"
	// KindForwardZone is a forward zone file (*.db or db.*).
	KindForwardZone FileKind = "forward-zone"
	// KindReverseZone is a reverse zone file (*.rev or rev.*).
	KindReverseZone FileKind = "reverse-zone"
	// KindUnknown is any other file; it is deployed but not checked.
	KindUnknown FileKind = "unknown"
)

// CheckStatus is the outcome of checking a single file.
type CheckStatus string

const (
	// CheckPassed means the checker exited with status zero.
	CheckPassed CheckStatus = "passed"
	// CheckFailed means the checker exited non-zero or could not be started.
	CheckFailed CheckStatus = "failed"
	// CheckSkipped means no checker applies to the file.
	CheckSkipped CheckStatus = "skipped"
)

// FileCheck records the check performed on one file.
type FileCheck struct {
	// Path is the absolute path of the checked file.
	Path string
	// Kind is the policy chosen from the file name.
	Kind FileKind
	// Domain is the zone name passed to zone checkers.
	Domain string
	// Status is the check outcome.
	Status CheckStatus
	// Output is the combined checker output, kept for diagnostics.
	Output string
	// Err is the launch or exit error for failed checks.
	Err error
}

// Result is the verification outcome for one cache entry.
type Result struct {
	// Version is the verified release.
	Version Version
	// Checks lists per-file outcomes in the order they were run.
	Checks []FileCheck
}

// Passed reports whether no file failed its check.
// A result with zero checks has not verified anything and does not pass.
func (r *Result) Passed() bool {
	if r == nil || len(r.Checks) == 0 {
		return false
	}

	return len(r.Failed()) == 0
}

// Failed returns the checks that failed.
func (r *Result) Failed() []FileCheck {
	if r == nil {
		return nil
	}

	var failed []FileCheck

	for _, check := range r.Checks {
		if check.Status == CheckFailed {
			failed = append(failed, check)
		}
	}

	return failed
}
