package waproto

import "errors"

var errShortMessage = errors.New("waproto: message body shorter than its declared length")
