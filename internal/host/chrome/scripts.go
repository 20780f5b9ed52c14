package chrome

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// muteJS sets the muted flag of every media element in the page
const muteJS = `(muted) => {
	document.querySelectorAll('audio, video').forEach((el) => { el.muted = muted; });
	return true;
}`

// stateJS reports the page's visibility and focus
const stateJS = `() => {
	const visible = document.visibilityState === 'visible';
	return { visible: visible, focused: visible && document.hasFocus() };
}`

// blurJS reports focus loss through the binding, once per document
const blurJS = `(binding) => {
	if (window.__tabeqBlurWatch) {
		return false;
	}
	window.__tabeqBlurWatch = true;
	const report = () => {
		if (typeof window[binding] === 'function') {
			window[binding]({ state: document.visibilityState });
		}
	};
	window.addEventListener('blur', report);
	document.addEventListener('visibilitychange', () => {
		if (document.visibilityState === 'hidden') {
			report();
		}
	});
	return true;
}`

// captureJS captures the playing media element and pushes interleaved stereo
// float32 blocks, base64 encoded, through the binding. The processor output
// stays silent so the page is not heard twice.
const captureJS = `(id, binding, rate) => {
	const els = Array.from(document.querySelectorAll('audio, video'));
	const el = els.find((e) => !e.paused) || els[0];
	if (!el) {
		throw new Error('no media element in page');
	}
	const stream = el.captureStream ? el.captureStream() : el.mozCaptureStream();
	const ac = new AudioContext({ sampleRate: rate });
	const src = ac.createMediaStreamSource(stream);
	const proc = ac.createScriptProcessor(4096, 2, 2);
	proc.onaudioprocess = (e) => {
		const l = e.inputBuffer.getChannelData(0);
		const r = e.inputBuffer.numberOfChannels > 1 ? e.inputBuffer.getChannelData(1) : l;
		const buf = new Float32Array(l.length * 2);
		for (let i = 0; i < l.length; i++) {
			buf[2 * i] = l[i];
			buf[2 * i + 1] = r[i];
		}
		const bytes = new Uint8Array(buf.buffer);
		let bin = '';
		for (let i = 0; i < bytes.length; i++) {
			bin += String.fromCharCode(bytes[i]);
		}
		window[binding]({ id: id, data: btoa(bin) });
	};
	src.connect(proc);
	proc.connect(ac.destination);
	window.__tabeq = window.__tabeq || {};
	window.__tabeq[id] = { ac, src, proc, stream };
	return true;
}`

// releaseJS tears down the in-page capture graph for one stream
const releaseJS = `(id) => {
	const c = window.__tabeq && window.__tabeq[id];
	if (!c) {
		return false;
	}
	c.proc.onaudioprocess = null;
	c.proc.disconnect();
	c.src.disconnect();
	c.stream.getTracks().forEach((t) => t.stop());
	c.ac.close();
	delete window.__tabeq[id];
	return true;
}`

// decodeFrames turns a base64 block of little-endian interleaved stereo
// float32 samples into frames
func decodeFrames(data string) ([][2]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid capture block: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("capture block of %d bytes is not whole stereo frames", len(raw))
	}

	frames := make([][2]float64, len(raw)/8)
	for i := range frames {
		off := i * 8
		frames[i][0] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
		frames[i][1] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off+4:])))
	}
	return frames, nil
}
