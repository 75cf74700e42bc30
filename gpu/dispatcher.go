//go:build !nogpu

package gpu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/fractal"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DefaultFenceTimeout bounds the wait for one kernel launch.
const DefaultFenceTimeout = 5 * time.Second

// Dispatcher runs the Mandelbrot kernel as a wgpu/hal compute shader.
//
// The device, queue and compute pipeline are created once in New and
// reused by every Compute call. Each call allocates its own uniform,
// output and staging buffers and releases them before returning.
type Dispatcher struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	kernel *kernelPipeline

	spirv          []uint32
	adapterName    string
	externalDevice bool // true when using a shared device (don't destroy on Close)
	fenceTimeout   time.Duration
	logger         *slog.Logger
	closed         bool
}

var (
	_ fractal.Dispatcher          = (*Dispatcher)(nil)
	_ fractal.DeviceProviderAware = (*Dispatcher)(nil)
)

// New loads and compiles the kernel, selects a GPU adapter and builds the
// compute pipeline.
//
// Errors: ErrKernelCompilation when the kernel cannot be read, compiled or
// turned into a pipeline; ErrDeviceUnavailable when no Vulkan backend or
// adapter is present or the device cannot be opened.
func New(opts fractal.DeviceOptions) (*Dispatcher, error) {
	d := &Dispatcher{
		fenceTimeout: DefaultFenceTimeout,
		logger:       fractal.Logger(),
	}

	src, err := LoadKernel(opts.KernelFile)
	if err != nil {
		return nil, err
	}
	d.spirv, err = CompileKernel(src)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("kernel compiled", "source", kernelLabel(opts.KernelFile), "spirv_words", len(d.spirv))

	if err := d.initGPU(); err != nil {
		d.Close()
		return nil, err
	}
	d.kernel, err = buildPipeline(d.device, d.spirv)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.logger.Info("gpu dispatcher initialized", "adapter", d.adapterName)
	return d, nil
}

func kernelLabel(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func (d *Dispatcher) Name() string { return DeviceName }

// Adapter returns the name of the selected GPU adapter.
func (d *Dispatcher) Adapter() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adapterName
}

// SetLogger replaces the device logger.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger = l
}

// SetFenceTimeout bounds the wait for a single launch. Non-positive values
// restore DefaultFenceTimeout.
func (d *Dispatcher) SetFenceTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fenceTimeout = timeout
}

func (d *Dispatcher) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "get backend",
			errors.New("vulkan backend not available"))
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "create instance", err)
	}
	d.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "enumerate adapters",
			errors.New("no GPU adapters found"))
	}
	selected := selectAdapter(adapters)

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fractal.NewDeviceError(fractal.ErrDeviceUnavailable, DeviceName, "open device "+selected.Info.Name, err)
	}
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapterName = selected.Info.Name
	return nil
}

// selectAdapter prefers the first hardware GPU and otherwise takes the
// first adapter (e.g., a software rasterizer).
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// kernelPipeline holds the compute pipeline objects built on one device.
type kernelPipeline struct {
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// buildPipeline creates the kernel pipeline on device. On failure every
// object it already created is destroyed and device is left as it was.
func buildPipeline(device hal.Device, spirv []uint32) (_ *kernelPipeline, err error) {
	k := &kernelPipeline{}
	defer func() {
		if err != nil {
			k.destroy(device)
		}
	}()

	k.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mandelbrot",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "create shader module", err)
	}

	k.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "mandelbrot_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeUniform, MinBindingSize: paramsSize,
			}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{
				Type: gputypes.BufferBindingTypeStorage,
			}},
		},
	})
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "create bind group layout", err)
	}

	k.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "mandelbrot_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{k.bindLayout},
	})
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "create pipeline layout", err)
	}

	k.pipeline, err = device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "mandelbrot_pipeline", Layout: k.pipeLayout,
		Compute: hal.ComputeState{Module: k.shader, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrKernelCompilation, DeviceName, "create compute pipeline", err)
	}
	return k, nil
}

func (k *kernelPipeline) destroy(device hal.Device) {
	if k == nil || device == nil {
		return
	}
	if k.pipeline != nil {
		device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.shader != nil {
		device.DestroyShaderModule(k.shader)
		k.shader = nil
	}
}

// SetDeviceProvider switches the dispatcher to a GPU device shared with an
// external provider (e.g., gogpu). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
// The shared device is not destroyed by Close. The pipeline is built on
// the shared device first; if that fails the dispatcher keeps its current
// device and pipeline.
func (d *Dispatcher) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("gpu: provider HalQueue is not hal.Queue")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fractal.ErrClosed
	}

	kernel, err := buildPipeline(device, d.spirv)
	if err != nil {
		d.logger.Warn("shared device rejected, keeping current device", "error", err)
		return err
	}

	d.kernel.destroy(d.device)
	d.kernel = nil
	d.releaseDevice()

	d.kernel = kernel
	d.device = device
	d.queue = queue
	d.externalDevice = true
	d.adapterName = "shared"
	d.logger.Info("gpu dispatcher switched to shared device")
	return nil
}

// releaseDevice destroys the owned device and instance, or forgets the
// shared ones.
func (d *Dispatcher) releaseDevice() {
	if !d.externalDevice {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device = nil
	d.queue = nil
	d.instance = nil
	d.externalDevice = false
}

// Close releases the pipeline and, unless shared, the device.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.kernel.destroy(d.device)
	d.kernel = nil
	d.releaseDevice()
	fractal.Detach(d)
}

// Compute implements fractal.Dispatcher.
//
// The context is checked before launch; an in-flight launch is bounded
// by the fence timeout instead of cancellation. The timeout covers the
// wait for the queue to report the submission complete.
func (d *Dispatcher) Compute(ctx context.Context, req fractal.Request) (*fractal.IterationGrid, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Precision != fractal.PrecisionFloat32 {
		return nil, fmt.Errorf("%w: gpu kernel supports float32 only, got %v", fractal.ErrInvalidRequest, req.Precision)
	}
	if err := ctx.Err(); err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "compute", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.kernel == nil {
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "compute", fractal.ErrClosed)
	}

	start := time.Now()
	grid := fractal.NewIterationGrid(req.Resolution)
	if err := d.dispatch(req, grid); err != nil {
		return nil, err
	}
	d.logger.Debug("gpu dispatch",
		"width", req.Resolution.Width, "height", req.Resolution.Height,
		"max_iter", req.Viewport.MaxIter, "elapsed", time.Since(start))
	return grid, nil
}

// launchBuffers are the per-call device allocations.
type launchBuffers struct {
	params  hal.Buffer
	output  hal.Buffer
	staging hal.Buffer
	bind    hal.BindGroup
}

func (d *Dispatcher) allocate(outputSize uint64) (*launchBuffers, error) {
	b := &launchBuffers{}
	var err error

	b.params, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_params", Size: paramsSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
	})
	if err != nil {
		return b, fractal.NewDeviceError(fractal.ErrAllocation, DeviceName, "create params buffer", err)
	}

	b.output, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_output", Size: outputSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return b, fractal.NewDeviceError(fractal.ErrAllocation, DeviceName,
			fmt.Sprintf("create output buffer (%d bytes)", outputSize), err)
	}

	b.staging, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mandelbrot_staging", Size: outputSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return b, fractal.NewDeviceError(fractal.ErrAllocation, DeviceName,
			fmt.Sprintf("create staging buffer (%d bytes)", outputSize), err)
	}

	b.bind, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "mandelbrot_bind", Layout: d.kernel.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: b.params.NativeHandle(), Offset: 0, Size: paramsSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: b.output.NativeHandle(), Offset: 0, Size: outputSize}},
		},
	})
	if err != nil {
		return b, fractal.NewDeviceError(fractal.ErrAllocation, DeviceName, "create bind group", err)
	}
	return b, nil
}

func (d *Dispatcher) release(b *launchBuffers) {
	if b.bind != nil {
		d.device.DestroyBindGroup(b.bind)
	}
	for _, buf := range []hal.Buffer{b.staging, b.output, b.params} {
		if buf != nil {
			d.device.DestroyBuffer(buf)
		}
	}
}

// dispatch runs one launch and decodes the result into grid.
func (d *Dispatcher) dispatch(req fractal.Request, grid *fractal.IterationGrid) error {
	w, h := req.Resolution.Width, req.Resolution.Height
	outputSize := uint64(w) * uint64(h) * 4 //nolint:gosec // dimensions are positive

	bufs, err := d.allocate(outputSize)
	defer d.release(bufs)
	if err != nil {
		return err
	}

	if err := d.queue.WriteBuffer(bufs.params, 0, encodeParams(req)); err != nil {
		return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "write params", err)
	}

	cmdBuf, err := d.encode(bufs, w, h, outputSize)
	if err != nil {
		return err
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	idx, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "submit", err)
	}
	if err := d.waitSubmission(idx); err != nil {
		return err
	}

	mapping, err := d.device.MapBuffer(bufs.staging, 0, outputSize)
	if err != nil {
		return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "map staging buffer", err)
	}
	if mapping.Ptr == nil {
		_ = d.device.UnmapBuffer(bufs.staging)
		return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "map staging buffer", errors.New("nil mapping"))
	}
	decodeCounts(unsafe.Slice((*byte)(mapping.Ptr), outputSize), grid.Counts)
	if err := d.device.UnmapBuffer(bufs.staging); err != nil {
		return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "unmap staging buffer", err)
	}
	return nil
}

// encode records the compute pass and the copy into the staging buffer.
// A successful EndEncoding hands the encoder's command pool to the
// returned buffer, which the caller frees with FreeCommandBuffer.
func (d *Dispatcher) encode(bufs *launchBuffers, w, h int, outputSize uint64) (hal.CommandBuffer, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "mandelbrot_encoder"})
	if err != nil {
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "create command encoder", err)
	}
	if err := encoder.BeginEncoding("mandelbrot"); err != nil {
		encoder.Destroy()
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "begin encoding", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mandelbrot_pass"})
	pass.SetPipeline(d.kernel.pipeline)
	pass.SetBindGroup(0, bufs.bind, nil)
	pass.Dispatch(workgroups(w, workgroupX), workgroups(h, workgroupY), 1)
	pass.End()

	encoder.CopyBufferToBuffer(bufs.output, bufs.staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outputSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nil, fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "end encoding", err)
	}
	return cmdBuf, nil
}

// pollInterval is the sleep between PollCompleted checks.
const pollInterval = 50 * time.Microsecond

// waitSubmission blocks until the queue reports submission idx complete or
// the fence timeout elapses.
func (d *Dispatcher) waitSubmission(idx uint64) error {
	deadline := time.Now().Add(d.fenceTimeout)
	for d.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fractal.NewDeviceError(fractal.ErrLaunch, DeviceName, "wait for GPU",
				fmt.Errorf("submission %d timed out after %v", idx, d.fenceTimeout))
		}
		time.Sleep(pollInterval)
	}
	return nil
}
