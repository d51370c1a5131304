package renderer

import (
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

/**
 * @brief The size dependent render targets shared by every pass. Passes only
 * read these; the engine creates and releases them.
 */
type Attachments struct {
	Color    *ImageBlock
	Position *ImageBlock
	Normal   *ImageBlock
	Material *ImageBlock
	Depth    *ImageBlock
	SSAO     *ImageBlock
	SSAOBlur *ImageBlock
}

func (a *Attachments) All() []*ImageBlock {
	return []*ImageBlock{a.Color, a.Position, a.Normal, a.Material, a.Depth, a.SSAO, a.SSAOBlur}
}

func (a *Attachments) Extent() metadata.Extent2D {
	return a.Color.Extent()
}

// Release destroys every image created so far, so it also cleans up after a
// partially failed CreateAttachments.
func (a *Attachments) Release() {
	for _, img := range a.All() {
		img.Release()
	}
}

const (
	gbufferUsage = metadata.IMAGE_USAGE_COLOR_ATTACHMENT | metadata.IMAGE_USAGE_INPUT_ATTACHMENT | metadata.IMAGE_USAGE_SAMPLED | metadata.IMAGE_USAGE_TRANSFER_SRC
	ssaoUsage    = metadata.IMAGE_USAGE_COLOR_ATTACHMENT | metadata.IMAGE_USAGE_SAMPLED
)

// CreateAttachments creates the GBuffer and SSAO targets at `extent`.
func CreateAttachments(rb *ResourceBuilder, extent metadata.Extent2D, depthFormat metadata.Format) (*Attachments, error) {
	depthAspect := metadata.IMAGE_ASPECT_DEPTH
	if depthFormat.HasStencil() {
		depthAspect |= metadata.IMAGE_ASPECT_STENCIL
	}
	a := &Attachments{}
	configs := []struct {
		target **ImageBlock
		config metadata.ImageConfig
	}{
		{&a.Color, metadata.ImageConfig{Name: "color", Format: metadata.FORMAT_R8G8B8A8_UNORM, Usage: gbufferUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
		{&a.Position, metadata.ImageConfig{Name: "position_depth", Format: metadata.FORMAT_R32G32B32A32_SFLOAT, Usage: gbufferUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
		{&a.Normal, metadata.ImageConfig{Name: "normal", Format: metadata.FORMAT_R8G8B8A8_UNORM, Usage: gbufferUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
		{&a.Material, metadata.ImageConfig{Name: "material", Format: metadata.FORMAT_R8G8B8A8_UNORM, Usage: gbufferUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
		{&a.Depth, metadata.ImageConfig{Name: "depth", Format: depthFormat, Usage: metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT | metadata.IMAGE_USAGE_INPUT_ATTACHMENT, Aspect: depthAspect}},
		{&a.SSAO, metadata.ImageConfig{Name: "ssao", Format: metadata.FORMAT_R8_UNORM, Usage: ssaoUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
		{&a.SSAOBlur, metadata.ImageConfig{Name: "ssao_blur", Format: metadata.FORMAT_R8_UNORM, Usage: ssaoUsage, Aspect: metadata.IMAGE_ASPECT_COLOR}},
	}

	for _, c := range configs {
		cfg := c.config
		cfg.Width = extent.Width
		cfg.Height = extent.Height
		cfg.Memory = metadata.MEMORY_PROPERTY_DEVICE_LOCAL
		img, err := rb.CreateImageBlock(cfg, nil)
		if err != nil {
			a.Release()
			return nil, err
		}
		*c.target = img
	}
	return a, nil
}
