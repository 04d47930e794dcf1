package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"mealplan/internal/domain"
)

// ImageRequest represents the information required to photograph a recipe.
type ImageRequest struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	RequestID      string
}

// ImageAsset is the normalized representation of a generated image.
type ImageAsset struct {
	Format string
	Width  int
	Height int
	Data   []byte
}

// GenerateImage renders one image for the prompt.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.apiKey == "" {
		return c.syntheticImage(req), nil
	}

	prompt := strings.TrimSpace(req.Prompt)
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		prompt += "\nAvoid: " + neg
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		prompt += "\nAspect ratio: " + aspect
	}
	resp, err := c.generateContent(ctx, c.imageModel, geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	})
	if err != nil {
		return nil, err
	}

	width, height := normalizeAspect(req.AspectRatio)
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: decode inline image: %v", domain.ErrProviderFailure, err)
			}
			w, h := decodeImageDimensions(data)
			if w == 0 || h == 0 {
				w, h = width, height
			}
			c.logger.Debug().Str("request_id", req.RequestID).Str("model", c.imageModel).Msg("genai: generated remote image")
			return &ImageAsset{
				Format: firstNonEmpty(part.InlineData.MimeType, "image/png"),
				Width:  w,
				Height: h,
				Data:   data,
			}, nil
		}
	}
	return nil, fmt.Errorf("%w: no image returned", domain.ErrProviderFailure)
}

func (c *Client) syntheticImage(req ImageRequest) *ImageAsset {
	width, height := normalizeAspect(req.AspectRatio)
	seed := deterministicSeed(req.RequestID, req.Prompt)
	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.imageModel).
		Msg("genai: generated synthetic image")
	return &ImageAsset{
		Format: "image/png",
		Width:  width,
		Height: height,
		Data:   renderSyntheticImage(width, height, seed),
	}
}

func renderSyntheticImage(width, height int, seed string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	base := colorFromSeed(seed, 0)
	accent := colorFromSeed(seed, 1)
	draw.Draw(img, img.Bounds(), &image.Uniform{base}, image.Point{}, draw.Src)

	// a plate: filled circle in the accent colour
	cx, cy := width/2, height/2
	radius := min(width, height) * 3 / 8
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, accent)
			}
		}
	}

	garnish := colorFromSeed(seed, 2)
	step := max(8, width/24)
	for i := 0; i < width; i += step {
		for y := 0; y < height; y++ {
			if xx := i + y; xx < width && (y/step)%2 == 0 {
				img.Set(xx, y, garnish)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func colorFromSeed(seed string, shift int) color.RGBA {
	if seed == "" {
		seed = "000000"
	}
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	r := mustParseHexByte(segment[0:2])
	g := mustParseHexByte(segment[2:4])
	b := mustParseHexByte(segment[4:6])
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func mustParseHexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// normalizeAspect maps an aspect ratio onto the synthetic canvas size.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 640, 360
	case "9:16":
		return 360, 640
	case "4:3":
		return 640, 480
	case "3:4":
		return 480, 640
	default:
		return 512, 512
	}
}
