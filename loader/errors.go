package loader

import (
	"errors"
	"fmt"
)

// ErrAllWorkersDead is returned by Next when every prefetch worker has exited
// and the consumer still needs data. A stalled pipeline must not hang
// silently, so this error is fatal: no further Next calls are safe.
var ErrAllWorkersDead = errors.New("loader: all prefetch workers have died")

// ConfigError reports an invalid loader or dataset configuration. It is
// raised at construction or rebuild time and is always fatal.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// FetchError wraps a failure to load one window of samples. Recoverable
// failures (a missing or corrupt file) are logged and skipped by the batch
// loop; anything else aborts the pipeline.
type FetchError struct {
	Name        string
	Recoverable bool
	Err         error
}

func (e *FetchError) Error() string {
	kind := "fatal"
	if e.Recoverable {
		kind = "recoverable"
	}
	return fmt.Sprintf("loader: %s fetch error for %q: %v", kind, e.Name, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RecoverableFetch wraps err as a recoverable per-sample failure. Dataset
// adapters use it for missing or corrupt samples so the batch loop can skip
// the affected minibatch instead of failing the whole pipeline.
func RecoverableFetch(name string, err error) error {
	return &FetchError{Name: name, Recoverable: true, Err: err}
}

// FatalFetch wraps err as a non-recoverable per-sample failure.
func FatalFetch(name string, err error) error {
	return &FetchError{Name: name, Recoverable: false, Err: err}
}

// IsRecoverableFetch reports whether err is (or wraps) a recoverable
// FetchError.
func IsRecoverableFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Recoverable
}
