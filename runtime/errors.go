package runtime

import "errors"

var errPlaintextChatRejected = errors.New("runtime: chat envelope must be encrypted")
