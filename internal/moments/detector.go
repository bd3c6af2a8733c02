package moments

import "math"

// Labels assigned to detected moments, in priority order.
const (
	LabelSpikeChat   = "spike+chat"
	LabelViewerSpike = "viewer spike"
	LabelNotable     = "notable moment"
)

const (
	// minPct is the relative audience growth that qualifies on its own.
	minPct = 0.12
	// combinedFloor is the minimum blended score for any spike.
	combinedFloor = 0.25
	// epsilon guards the chat ratio against tiny previous buckets.
	epsilon = 0.0001
)

// Result is the outcome of evaluating one pair of audience samples.
type Result struct {
	Spike     bool
	Score     int
	Label     string
	Pct       float64
	ChatBoost float64
}

// Detect is a pure function over the previous and current audience sizes
// and the two most recent chat-activity bucket counts (newest first).
// Thresholds adapt to audience size so small channels need small absolute
// jumps and large channels need proportional ones.
func Detect(previous, current int, buckets []int) Result {
	delta := current - previous
	pct := float64(delta) / math.Max(float64(previous), 1)

	chatBoost := 0.0
	if len(buckets) >= 2 {
		last, prev := buckets[0], buckets[1]
		if prev == 0 {
			if last > 5 {
				chatBoost = math.Min(1, float64(last)/20)
			}
		} else {
			ratio := float64(last-prev) / math.Max(float64(prev), epsilon)
			chatBoost = math.Min(1, math.Max(0, ratio))
		}
	}

	baseAudience := math.Max(10, float64(previous))
	minDelta := int(math.Max(3, math.Round(0.15*baseAudience)))

	viewerScore := math.Min(1, math.Max(0, pct)/0.5)
	combined := 0.7*viewerScore + 0.3*chatBoost

	res := Result{Pct: pct, ChatBoost: chatBoost}
	if (delta >= minDelta || pct >= minPct) && combined >= combinedFloor && delta > 0 {
		res.Spike = true
		res.Score = int(math.Round(100*pct + 50*chatBoost + math.Min(30, float64(delta))))
		switch {
		case chatBoost >= 0.4:
			res.Label = LabelSpikeChat
		case pct >= 0.3:
			res.Label = LabelViewerSpike
		default:
			res.Label = LabelNotable
		}
	}
	return res
}
