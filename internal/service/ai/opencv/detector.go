// Package opencv runs YOLO models exported to ONNX through the OpenCV DNN module.
package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/ai/annotate"
	"detectserver/internal/service/ai/yolo"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// DetectorService wraps one loaded network. A gocv.Net is not safe for
// concurrent use, so Forward calls are serialized.
type DetectorService struct {
	name    string
	net     gocv.Net
	mu      sync.Mutex
	labels  []string
	options yolo.Options
	logger  *logger.Logger
}

// NewDetectorService loads the model described by mc.
func NewDetectorService(mc config.ModelConfig, options yolo.Options, logger *logger.Logger) (*DetectorService, error) {
	if _, err := os.Stat(mc.Path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", mc.Path)
	}

	labels, err := yolo.LoadLabels(mc.LabelsPath)
	if err != nil {
		return nil, err
	}

	net := gocv.ReadNet(mc.Path, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", mc.Path)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &DetectorService{
		name:    mc.Name,
		net:     net,
		labels:  labels,
		options: options,
		logger:  logger,
	}, nil
}

// Loader adapts NewDetectorService to ai.Loader.
func Loader(options yolo.Options, logger *logger.Logger) ai.Loader {
	return func(mc config.ModelConfig) (ai.Capability, error) {
		return NewDetectorService(mc, options, logger)
	}
}

// Detect reads the image at path and runs the network on it.
func (s *DetectorService) Detect(ctx context.Context, path string) (ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := readImage(path)
	if err != nil {
		return nil, err
	}

	detections, err := s.forward(mat)
	if err != nil {
		mat.Close()
		return nil, err
	}

	s.logger.Info("%s found %d object(s) in %s", s.name, len(detections), path)
	return &result{mat: mat, detections: detections}, nil
}

func (s *DetectorService) forward(mat gocv.Mat) ([]dto.DetectionResult, error) {
	size := image.Pt(s.options.InputWidth, s.options.InputHeight)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	if output.Empty() {
		return nil, fmt.Errorf("network returned no output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %v", err)
	}

	return yolo.Decode(data, output.Size(), mat.Cols(), mat.Rows(), s.labels, s.options)
}

// Close releases the network.
func (s *DetectorService) Close() error {
	return s.net.Close()
}

// readImage decodes with OpenCV and falls back to the Go decoders for
// formats the OpenCV build may lack (gif, webp).
func readImage(path string) (gocv.Mat, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if !mat.Empty() {
		return mat, nil
	}
	mat.Close()

	img, err := imaging.Open(path)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to decode image: %v", err)
	}

	mat, err = gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image: %v", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("decoded image is empty")
	}
	return mat, nil
}

type result struct {
	mat        gocv.Mat
	detections []dto.DetectionResult
}

func (r *result) Detections() []dto.DetectionResult {
	return r.detections
}

// Save draws rectangles and labels on the image and writes it to path.
func (r *result) Save(path string) error {
	canvas := r.mat.Clone()
	defer canvas.Close()

	for _, detection := range r.detections {
		c := annotate.Color(detection.ClassID)
		rect := image.Rect(detection.X, detection.Y, detection.X+detection.Width, detection.Y+detection.Height)
		if err := gocv.Rectangle(&canvas, rect, c, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %v", err)
		}

		pt := image.Pt(detection.X, max(detection.Y-5, 12))
		if err := gocv.PutText(&canvas, annotate.Caption(detection), pt, gocv.FontHersheySimplex, 0.5, c, 1); err != nil {
			return fmt.Errorf("failed to draw text: %v", err)
		}
	}

	if gocv.IMWrite(path, canvas) {
		return nil
	}

	// Encoder missing for this extension; keep the name, store PNG data.
	buf, err := gocv.IMEncode(gocv.PNGFileExt, canvas)
	if err != nil {
		return fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	return os.WriteFile(path, buf.GetBytes(), 0644)
}

func (r *result) Close() error {
	return r.mat.Close()
}
