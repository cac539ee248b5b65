package task

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"tools.zach/dev/assetpipe/internal/paths"
	"tools.zach/dev/assetpipe/internal/transform"
)

// ///////////////////////////////////////////////
// Constructors
// ///////////////////////////////////////////////

// HTML copies page templates, minified in production.
func HTML() *Task { return &Task{Category: paths.HTML, run: runHTML} }

// Styles compiles SCSS entry points into dist/css.
func Styles() *Task { return &Task{Category: paths.Styles, run: runStyles} }

// Scripts bundles src/js/main.js into dist/js.
func Scripts() *Task { return &Task{Category: paths.Scripts, run: runScripts} }

// Images copies raster and SVG images, optimized in production.
func Images() *Task { return &Task{Category: paths.Images, run: runImages} }

// WebP writes a WebP rendition next to every JPEG and PNG.
func WebP() *Task { return &Task{Category: paths.WebP, run: runWebP} }

// Sprites assembles all sprite sources into dist/sprites/sprites.svg.
func Sprites() *Task { return &Task{Category: paths.Sprites, run: runSprites} }

// Assets copies fonts and icons unchanged.
func Assets() *Task { return &Task{Category: paths.Assets, run: runAssets} }

// All returns one task per category, in path table order.
func All() []*Task {
	return []*Task{HTML(), Styles(), Scripts(), Images(), WebP(), Sprites(), Assets()}
}

// ForCategory returns the task for c, or nil if c is unknown.
func ForCategory(c paths.Category) *Task {
	for _, t := range All() {
		if t.Category == c {
			return t
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// Pipelines
// ///////////////////////////////////////////////

func runHTML(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.read(src)
		if err != nil {
			return err
		}
		if !r.env.Mode.IsDev() {
			if data, err = transform.MinifyHTML(data); err != nil {
				r.fail(src, err)
				continue
			}
		}
		dst, err := r.output(src, "")
		if err != nil {
			return err
		}
		if err := r.write(dst, data); err != nil {
			return err
		}
	}
	return nil
}

// isPartial reports whether a stylesheet is only meant to be imported.
func isPartial(src string) bool {
	return strings.HasPrefix(path.Base(src), "_")
}

func runStyles(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	var entries []string
	for _, src := range files {
		if !isPartial(src) {
			entries = append(entries, src)
		}
	}
	if len(entries) == 0 {
		return nil
	}
	if r.env.Styles == nil {
		return errors.New("no style compiler configured")
	}

	dev := r.env.Mode.IsDev()
	var engines []api.Engine
	if !dev {
		if engines, err = transform.ParseEngines(r.env.Config.Styles.Targets); err != nil {
			return fmt.Errorf("styles.targets: %w", err)
		}
	}

	for _, src := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.read(src)
		if err != nil {
			return err
		}

		sheet, err := r.env.Styles.Compile(r.env.Project.Abs(src), data, dev)
		if err != nil {
			if errors.Is(err, transform.ErrCompilerUnavailable) {
				return err
			}
			r.fail(src, err)
			continue
		}

		minName, err := r.output(src, paths.MinSuffix+".css")
		if err != nil {
			return err
		}

		if dev {
			css := sheet.CSS
			if len(sheet.SourceMap) > 0 {
				css = transform.InlineSourceMap(css, sheet.SourceMap)
			}
			if err := r.write(minName, css); err != nil {
				return err
			}
			continue
		}

		css, err := transform.Prefix(sheet.CSS, engines)
		if err != nil {
			r.fail(src, err)
			continue
		}
		if css, err = transform.GroupMediaQueries(css); err != nil {
			r.fail(src, err)
			continue
		}
		plainName, err := r.output(src, ".css")
		if err != nil {
			return err
		}
		if err := r.write(plainName, css); err != nil {
			return err
		}
		min, err := transform.MinifyCSS(css)
		if err != nil {
			r.fail(src, err)
			continue
		}
		if err := r.write(minName, min); err != nil {
			return err
		}
	}
	return nil
}

func runScripts(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}

	dev := r.env.Mode.IsDev()
	target := api.ESNext
	if !dev {
		if target, err = transform.ParseScriptTarget(r.env.Config.Scripts.Target); err != nil {
			return fmt.Errorf("scripts.target: %w", err)
		}
	}

	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		minName, err := r.output(src, paths.MinSuffix+".js")
		if err != nil {
			return err
		}
		plainName, err := r.output(src, "")
		if err != nil {
			return err
		}

		outName := plainName
		if dev {
			outName = minName
		}
		bundle, err := transform.BuildBundle(transform.BundleOptions{
			Entry:     r.env.Project.Abs(src),
			Outfile:   r.env.Project.Abs(outName),
			Target:    target,
			SourceMap: dev,
		})
		if err != nil {
			r.fail(src, err)
			continue
		}

		if dev {
			if err := r.write(minName, bundle.JS); err != nil {
				return err
			}
			if len(bundle.Map) > 0 {
				if err := r.write(minName+".map", bundle.Map); err != nil {
					return err
				}
			}
			continue
		}

		if err := r.write(plainName, bundle.JS); err != nil {
			return err
		}
		min, err := transform.MinifyJS(bundle.JS)
		if err != nil {
			r.fail(src, err)
			continue
		}
		if err := r.write(minName, min); err != nil {
			return err
		}
	}
	return nil
}

func runImages(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	quality := r.env.Config.Images.JPEGQuality
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := r.output(src, "")
		if err != nil {
			return err
		}
		if r.env.Mode.IsDev() {
			if err := r.copy(src, dst); err != nil {
				return err
			}
			continue
		}

		data, err := r.read(src)
		if err != nil {
			return err
		}
		if data, err = transform.OptimizeImage(src, data, quality); err != nil {
			r.fail(src, err)
			continue
		}
		if err := r.write(dst, data); err != nil {
			return err
		}
	}
	return nil
}

func runWebP(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	quality := r.env.Config.Images.WebPQuality
	if r.env.Mode.IsDev() {
		quality = r.env.Config.Images.WebPDevQuality
	}
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.read(src)
		if err != nil {
			return err
		}
		out, err := transform.ToWebP(data, quality)
		if err != nil {
			r.fail(src, err)
			continue
		}
		dst, err := r.output(src, ".webp")
		if err != nil {
			return err
		}
		if err := r.write(dst, out); err != nil {
			return err
		}
	}
	return nil
}

func runSprites(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	sprite := transform.NewSpriteBuilder()
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := r.read(src)
		if err != nil {
			return err
		}
		rel, err := r.entry.Rel(src)
		if err != nil {
			return err
		}
		if err := sprite.Add(transform.SpriteID(rel), data); err != nil {
			r.fail(src, err)
		}
	}
	dst := path.Join(r.entry.Dist, paths.SpriteFile)
	if sprite.Len() == 0 {
		return r.remove(dst)
	}

	out, err := sprite.Bytes()
	if err != nil {
		r.fail(dst, err)
		return nil
	}
	return r.write(dst, out)
}

func runAssets(ctx context.Context, r *runner) error {
	files, err := r.sources()
	if err != nil {
		return err
	}
	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst, err := r.output(src, "")
		if err != nil {
			return err
		}
		if err := r.copy(src, dst); err != nil {
			return err
		}
	}
	return nil
}
