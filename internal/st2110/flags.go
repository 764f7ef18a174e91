// Package st2110 is the public API surface of spec.md §6.2/§6.3: per
// media kind Create/Free/UpdateDestination/GetFramebuffer/GetStats/
// ResetStats, built on top of internal/session and internal/builder.
package st2110

// TxFlag is the bitmask of spec.md §6.3 ("ST20_TX_FLAG_...").
type TxFlag uint32

const (
	FlagUserPacing TxFlag = 1 << iota
	FlagExactUserPacing
	FlagUserTimestamp
	FlagRTPTimestampEpoch
	FlagUserPMac
	FlagUserRMac
	FlagExtFrame
	FlagDisableBulk
	FlagEnableVsync
	FlagEnableRTCP
	FlagEnableStaticPadP
	FlagForceNUMA
)

// Has reports whether every bit in want is set in f.
func (f TxFlag) Has(want TxFlag) bool { return f&want == want }

// FlagDisableBoxes is the ST22-specific addition of spec.md §6.4: "unless
// DISABLE_BOXES is set" the jpvs/jpvi/jxpl/colr box set is prepended to
// the codestream. It lives outside the common bitmask's iota run so it
// never collides with a future shared flag.
const FlagDisableBoxes TxFlag = 1 << 31
