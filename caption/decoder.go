package caption

import (
	"log/slog"

	"github.com/zsiec/ccx"
)

// Decoder turns extracted caption SEI samples into displayable text frames.
// It maintains CEA-608 channel decoders and CEA-708 DTVCC services across
// calls, so one Decoder must see a stream's caption samples in order. It is
// not safe for concurrent use.
type Decoder struct {
	log        *slog.Logger
	cea608Decs map[int]*ccx.CEA608Decoder
	cea708Svcs map[int]*ccx.CEA708Service
	dtvccBuf   []byte
	seiCount   int64

	lastCCCtrl       [2][2]byte
	lastCCWasCtrl    [2]bool
	lastCCCtrlSample [2]int64
}

// NewDecoder creates a Decoder. If log is nil, slog.Default() is used.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{
		log: log.With("component", "caption-decoder"),
		cea708Svcs: map[int]*ccx.CEA708Service{
			1: ccx.NewCEA708Service(),
			2: ccx.NewCEA708Service(),
			3: ccx.NewCEA708Service(),
			4: ccx.NewCEA708Service(),
			5: ccx.NewCEA708Service(),
			6: ccx.NewCEA708Service(),
		},
		cea608Decs: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

// Decode feeds one caption SEI sample through the 608/708 decoders and
// returns any caption frames it completes. Frame PTS values are in the
// owning track's timescale ticks, as assigned during extraction.
func (d *Decoder) Decode(s Sample) []*ccx.CaptionFrame {
	d.seiCount++

	cd := ccx.ExtractCaptions(s.Raw)
	if cd == nil {
		return nil
	}

	pts := int64(s.PTS)
	var frames []*ccx.CaptionFrame

	for _, pair := range cd.CC608Pairs {
		cc1, cc2 := pair.Data[0], pair.Data[1]

		// CEA-608 control codes are transmitted twice for robustness; drop
		// the immediate retransmission of the same control pair.
		isCtrl := cc1 >= 0x10 && cc1 <= 0x1F
		f := pair.Field
		if isCtrl {
			cp := [2]byte{cc1, cc2}
			gap := d.seiCount - d.lastCCCtrlSample[f]
			if d.lastCCWasCtrl[f] && d.lastCCCtrl[f] == cp && gap <= 2 {
				d.lastCCWasCtrl[f] = false
				continue
			}
			d.lastCCCtrl[f] = cp
			d.lastCCWasCtrl[f] = true
			d.lastCCCtrlSample[f] = d.seiCount
		} else {
			d.lastCCWasCtrl[f] = false
		}

		dec := d.cea608Decs[pair.Channel]
		if dec == nil {
			continue
		}
		if text := dec.Decode(cc1, cc2); text != "" {
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
			frame.Regions = dec.StyledRegions()
			frames = append(frames, frame)
		}
	}

	for _, t := range cd.DTVCC {
		if t.Start {
			frames = append(frames, d.drainDTVCC(pts)...)
			d.dtvccBuf = d.dtvccBuf[:0]
		}
		d.dtvccBuf = append(d.dtvccBuf, t.Data[0], t.Data[1])
	}

	return frames
}

// Flush drains any buffered DTVCC packet at end of stream.
func (d *Decoder) Flush(pts int64) []*ccx.CaptionFrame {
	frames := d.drainDTVCC(pts)
	d.dtvccBuf = d.dtvccBuf[:0]
	return frames
}

func (d *Decoder) drainDTVCC(pts int64) []*ccx.CaptionFrame {
	if len(d.dtvccBuf) < 1 {
		return nil
	}

	packetSize := ccx.DTVCCPacketSize(d.dtvccBuf[0])
	if len(d.dtvccBuf) < packetSize {
		return nil
	}

	var frames []*ccx.CaptionFrame
	for _, block := range ccx.ParseDTVCCPacket(d.dtvccBuf[:packetSize]) {
		svc := d.cea708Svcs[block.ServiceNum]
		if svc == nil {
			continue
		}
		if svc.ProcessBlock(block.Data) {
			if text := svc.DisplayText(); text != "" {
				channel := block.ServiceNum + 6
				frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: channel}
				frame.Regions = svc.StyledRegions()
				frames = append(frames, frame)
			}
		}
	}
	d.dtvccBuf = d.dtvccBuf[packetSize:]
	return frames
}
