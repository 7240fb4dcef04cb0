//go:build !linux

package streamer

import "errors"

func setRealtimePriority() error {
	return errors.New("not supported on this platform")
}
