package meshcrypt

// DataType select the packet framing EncMsg builds. Only universal
// framing exist now.
type DataType string

const DataUniversal DataType = "universal"

type msgOptions struct {
	seq        uint16
	retry      uint8
	ackRequest bool
	broadcast  bool
	dataType   DataType
}

func defaultMsgOptions() msgOptions {
	return msgOptions{ackRequest: true, dataType: DataUniversal}
}

type MsgOption func(*msgOptions)

func WithSequence(seq uint16) MsgOption {
	return func(o *msgOptions) { o.seq = seq }
}

// WithRetryCount only stamp the count into header, caller do retransmit.
func WithRetryCount(n uint8) MsgOption {
	return func(o *msgOptions) { o.retry = n }
}

// WithAckRequest default true for EncMsg, false for EncAck
func WithAckRequest(ack bool) MsgOption {
	return func(o *msgOptions) { o.ackRequest = ack }
}

func WithBroadcast() MsgOption {
	return func(o *msgOptions) { o.broadcast = true }
}

func WithDataType(t DataType) MsgOption {
	return func(o *msgOptions) { o.dataType = t }
}
