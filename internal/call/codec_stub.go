//go:build !opus
// +build !opus

package call

import "errors"

// Builds without the opus tag link no libopus. Calls can still be joined,
// but nothing can be heard or played.

var errNoOpus = errors.New("built without opus support (rebuild with -tags opus)")

func newOpusDecoder() (frameDecoder, error) { return nil, errNoOpus }
func newOpusEncoder() (frameEncoder, error) { return nil, errNoOpus }
