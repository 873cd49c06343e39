package posevis

import "errors"

// Fault taxonomy. Validation faults reject a frame before any device work,
// lookup faults indicate a topology/range mismatch, device faults come from
// the device boundary. All are caught at the public operation boundary,
// logged, and converted to safe return values; none propagate out of
// Render, InitializeOnThread, Teardown or the flag accessors.
var (
	// ErrEmptyOutput is returned when the output frame has no backing store.
	ErrEmptyOutput = errors.New("posevis: empty output frame")

	// ErrInvalidScale is returned when a non-overlay target is rendered
	// without a valid positive net-to-output scale.
	ErrInvalidScale = errors.New("posevis: invalid net-to-output scale")

	// ErrKeypointOverflow is returned when a keypoint array exceeds the
	// device pose buffer capacity.
	ErrKeypointOverflow = errors.New("posevis: keypoints exceed pose buffer capacity")

	// ErrKeypointShape is returned when the keypoint array length does not
	// match people x parts x 3.
	ErrKeypointShape = errors.New("posevis: keypoint array does not match people count")

	// ErrUnknownPart is returned when a channel index referenced by the
	// topology has no entry in the part name table.
	ErrUnknownPart = errors.New("posevis: channel index has no part name")

	// ErrUnknownModel is returned for a pose model outside the catalog.
	ErrUnknownModel = errors.New("posevis: unknown pose model")

	// ErrTargetCount is returned when the computed render-target count
	// disagrees with the resolved name table.
	ErrTargetCount = errors.New("posevis: render-target count does not match name table")

	// ErrNotInitialized is returned when Render runs before
	// InitializeOnThread has allocated the device pose buffer.
	ErrNotInitialized = errors.New("posevis: renderer not initialized on thread")

	// ErrNilSource is returned when a heatmap target is rendered without
	// an upstream heatmap source.
	ErrNilSource = errors.New("posevis: no heatmap source configured")

	// ErrDeviceNotReady indicates the device rejected an operation because
	// it is not initialized or has been closed.
	ErrDeviceNotReady = errors.New("posevis: device not ready")
)
