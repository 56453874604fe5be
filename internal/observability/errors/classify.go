package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
)

// Classify returns a short error class for metric tags. Authentication errors use their
// kind; anything else falls back to the innermost concrete type name.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var ae *domainauth.Error
	if goerrors.As(err, &ae) {
		return string(ae.Kind)
	}

	for {
		inner := goerrors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}

	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
