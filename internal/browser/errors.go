package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
)

// CDP messages that mean the node behind a handle is gone.
var staleMarkers = []string{
	"Could not find node with given id",
	"Node with given id does not exist",
	"Cannot find context with specified id",
	"Could not find object with given id",
	"Node is detached",
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStale) || errors.Is(err, ErrIntercepted) || errors.Is(err, ErrSessionDead) {
		return err
	}

	var covered *rod.CoveredError
	var noPointer *rod.NoPointerEventsError
	var invisible *rod.InvisibleShapeError
	switch {
	case errors.As(err, &covered), errors.As(err, &noPointer):
		return fmt.Errorf("%w: %v", ErrIntercepted, err)
	case errors.As(err, &invisible):
		// A zero-size hit box cannot take a pointer click either.
		return fmt.Errorf("%w: %v", ErrIntercepted, err)
	}

	msg := err.Error()
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", ErrStale, err)
		}
	}
	return err
}
