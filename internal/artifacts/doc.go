// Package artifacts stores remnant (SPARE) and defect (DEFECT) boxes under the
// shared root. Each box is a JSON record in a dated folder plus a label image
// produced by a pluggable Renderer from a LabelDescriptor.
//
// Layout:
//
//	<root>/spare/<YYYY-MM-DD>/<SPARE-id>.json
//	<root>/defects_merged/<YYYY-MM-DD>/<DEFECT-id>.json
//	<labels>/remnant_labels/<YYYY-MM-DD>/<id>.png
//	<labels>/defective_labels/<YYYY-MM-DD>/<id>.png
package artifacts
