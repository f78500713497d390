// Package onnx runs YOLO models through ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"sync"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/ai/annotate"
	"detectserver/internal/service/ai/yolo"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	_ "golang.org/x/image/webp"
)

// Initialize loads the ONNX Runtime shared library. It must be called once
// before any model is created.
func Initialize(libraryPath string) error {
	ort.SetSharedLibraryPath(libraryPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing onnxruntime: %w", err)
	}
	return nil
}

// Shutdown releases the ONNX Runtime environment.
func Shutdown() error {
	return ort.DestroyEnvironment()
}

// ModelSession bundles a session with its preallocated tensors.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// Destroy releases the session and its tensors.
func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// DetectorService runs one model. The session reuses its tensors, so runs
// are serialized.
type DetectorService struct {
	name        string
	session     *ModelSession
	mu          sync.Mutex
	inputWidth  int
	inputHeight int
	outputShape []int
	labels      []string
	options     yolo.Options
	logger      *logger.Logger
}

// NewDetectorService creates a session for the model described by mc.
func NewDetectorService(mc config.ModelConfig, options yolo.Options, logger *logger.Logger) (*DetectorService, error) {
	labels, err := yolo.LoadLabels(mc.LabelsPath)
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(mc.Path)
	if err != nil {
		return nil, fmt.Errorf("error reading model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	inputShape, err := resolveShape(inputs[0].Dimensions, int64(options.InputHeight), int64(options.InputWidth))
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", inputs[0].Name, err)
	}
	outputShape, err := resolveShape(outputs[0].Dimensions, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", outputs[0].Name, err)
	}

	session, err := initSession(mc.Path, inputs[0].Name, outputs[0].Name, inputShape, outputShape)
	if err != nil {
		return nil, err
	}

	options.InputHeight = int(inputShape[2])
	options.InputWidth = int(inputShape[3])

	shape := make([]int, len(outputShape))
	for i, d := range outputShape {
		shape[i] = int(d)
	}

	return &DetectorService{
		name:        mc.Name,
		session:     session,
		inputWidth:  options.InputWidth,
		inputHeight: options.InputHeight,
		outputShape: shape,
		labels:      labels,
		options:     options,
		logger:      logger,
	}, nil
}

// Loader adapts NewDetectorService to ai.Loader.
func Loader(options yolo.Options, logger *logger.Logger) ai.Loader {
	return func(mc config.ModelConfig) (ai.Capability, error) {
		return NewDetectorService(mc, options, logger)
	}
}

// resolveShape replaces dynamic dimensions: the batch becomes 1 and, for a
// 4-D NCHW input, the spatial dimensions take height and width.
func resolveShape(dims ort.Shape, height, width int64) (ort.Shape, error) {
	shape := dims.Clone()
	for i, d := range shape {
		if d > 0 {
			continue
		}
		switch {
		case i == 0:
			shape[i] = 1
		case len(shape) == 4 && i == 2 && height > 0:
			shape[i] = height
		case len(shape) == 4 && i == 3 && width > 0:
			shape[i] = width
		default:
			return nil, fmt.Errorf("dynamic dimension %d in %v is not supported", i, dims)
		}
	}
	if height > 0 && (len(shape) != 4 || shape[1] != 3) {
		return nil, fmt.Errorf("expected NCHW input with 3 channels, got %v", shape)
	}
	return shape, nil
}

func initSession(modelPath, inputName, outputName string, inputShape, outputShape ort.Shape) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(1)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		Input:   inputTensor,
		Output:  outputTensor,
	}, nil
}

// Detect decodes the image at path, runs the model and decodes the boxes.
func (s *DetectorService) Detect(ctx context.Context, path string) (ai.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	resized := imaging.Resize(img, s.inputWidth, s.inputHeight, imaging.Linear)

	s.mu.Lock()
	fillInput(resized, s.session.Input.GetData())
	if err := s.session.Session.Run(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("model inference: %w", err)
	}
	output := append([]float32(nil), s.session.Output.GetData()...)
	s.mu.Unlock()

	detections, err := yolo.Decode(output, s.outputShape, bounds.Dx(), bounds.Dy(), s.labels, s.options)
	if err != nil {
		return nil, fmt.Errorf("process predictions: %w", err)
	}

	s.logger.Info("%s found %d object(s) in %s", s.name, len(detections), path)
	return &result{img: img, detections: detections}, nil
}

// Close destroys the session.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Destroy()
	return nil
}

// fillInput writes pic into dst as planar RGB scaled to [0, 1].
func fillInput(pic *image.NRGBA, dst []float32) {
	width, height := pic.Bounds().Dx(), pic.Bounds().Dy()
	channelSize := width * height

	for y := 0; y < height; y++ {
		row := pic.Pix[y*pic.Stride : y*pic.Stride+width*4]
		for x := 0; x < width; x++ {
			i := y*width + x
			dst[i] = float32(row[x*4]) / 255.0
			dst[channelSize+i] = float32(row[x*4+1]) / 255.0
			dst[channelSize*2+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

type result struct {
	img        image.Image
	detections []dto.DetectionResult
}

func (r *result) Detections() []dto.DetectionResult {
	return r.detections
}

func (r *result) Save(path string) error {
	return annotate.Save(annotate.Draw(r.img, r.detections), path)
}

func (r *result) Close() error {
	return nil
}
