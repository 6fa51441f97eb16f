// Package barcode classifies raw scanner input into the label kinds the
// inspection engine understands: master labels (JSON, legacy key=value, or a
// bare item code), remnant and defect box labels, and unit barcodes.
//
// Classification is pure and deterministic. Payloads that arrive wrapped in
// URL-safe base64 are unwrapped once and re-classified; decoding never
// recurses.
package barcode
