package wire

// ST41DataItem is one fast-metadata data item: payload words are
// 10-bit-word-aligned, with data_item_length expressed in 32-bit words,
// rounded up and zero-padded (spec.md §6.4).
type ST41DataItem struct {
	DataItemType   uint16
	DataItemK      uint16
	Payload        []byte
}

// DataItemLengthWords returns data_item_length: the payload length in
// 32-bit words, rounded up.
func (d ST41DataItem) DataItemLengthWords() int {
	return ceilDiv(len(d.Payload), 4)
}

// Pad pads the payload to a whole number of 32-bit words with zero
// bytes, returning the padded copy.
func (d ST41DataItem) Pad() []byte {
	words := d.DataItemLengthWords()
	padded := make([]byte, words*4)
	copy(padded, d.Payload)
	return padded
}

const st41HeaderLen = 4 // data_item_type(16) + data_item_k(16)

// Marshal encodes one data item: 4-byte header followed by the
// word-aligned, zero-padded payload.
func (d ST41DataItem) Marshal() []byte {
	out := make([]byte, 0, st41HeaderLen+d.DataItemLengthWords()*4)
	out = append(out, byte(d.DataItemType>>8), byte(d.DataItemType), byte(d.DataItemK>>8), byte(d.DataItemK))
	out = append(out, d.Pad()...)
	return out
}

// PlanST41 concatenates data items into one RTP payload, splitting
// across packets only when the combined length exceeds maxPayload.
func PlanST41(items []ST41DataItem, maxPayload int) [][]ST41DataItem {
	var groups [][]ST41DataItem
	var cur []ST41DataItem
	curLen := 0
	for _, it := range items {
		itLen := st41HeaderLen + it.DataItemLengthWords()*4
		if curLen+itLen > maxPayload && len(cur) > 0 {
			groups = append(groups, cur)
			cur = nil
			curLen = 0
		}
		cur = append(cur, it)
		curLen += itLen
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}
