package api

import (
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxbase-eu/webpackbridge/internal/assets"
	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

// LibraryResponse describes one library in listings
type LibraryResponse struct {
	ID           string               `json:"id"`
	Extension    string               `json:"extension"`
	Name         string               `json:"name"`
	Webpack      bool                 `json:"webpack"`
	Scope        string               `json:"scope"`
	JS           []catalog.JSAsset    `json:"js"`
	Dependencies []string             `json:"dependencies,omitempty"`
	EntryPoints  []catalog.EntryPoint `json:"entry_points,omitempty"`
}

// MappingResponse is the stored bundle mapping with its storage
type MappingResponse struct {
	Storage    bundleinfo.Storage `json:"storage"`
	OutputPath string             `json:"output_path"`
	Mapping    bundleinfo.Mapping `json:"mapping"`
}

// DevServerResponse is the recorded dev server and whether it answers
type DevServerResponse struct {
	bundleinfo.DevServerInfo
	Available bool `json:"available"`
}

// attachedAssets reads ?libraries=a/b,c/d&already_loaded=e/f
func attachedAssets(c *fiber.Ctx) (*assets.AttachedAssets, error) {
	libraries := splitList(c.Query("libraries"))
	if len(libraries) == 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "libraries query parameter is required")
	}
	return &assets.AttachedAssets{
		Libraries:     libraries,
		AlreadyLoaded: splitList(c.Query("already_loaded")),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// lookupError turns catalog errors into client errors
func lookupError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrInvalidIdentifier):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrLibraryNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}

func (s *Server) handleJSAssets(c *fiber.Ctx) error {
	attached, err := attachedAssets(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Rewriter.JSAssets(c.UserContext(), attached, c.QueryBool("optimize"))
	if err != nil {
		return lookupError(err)
	}
	if result.Header == nil {
		result.Header = assets.NewCollection()
	}
	if result.Footer == nil {
		result.Footer = assets.NewCollection()
	}
	return c.JSON(result)
}

func (s *Server) handleCSSAssets(c *fiber.Ctx) error {
	attached, err := attachedAssets(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Rewriter.CSSAssets(c.UserContext(), attached, c.QueryBool("optimize"))
	if err != nil {
		return lookupError(err)
	}
	if result == nil {
		result = assets.NewCollection()
	}
	return c.JSON(result)
}

func (s *Server) handleLibraries(c *fiber.Ctx) error {
	bundledOnly := c.QueryBool("bundled")

	all, err := s.deps.Catalog.ListAllLibraries(c.UserContext())
	if err != nil {
		return err
	}

	libraries := make([]LibraryResponse, 0)
	for _, byName := range all {
		for _, lib := range byName {
			if bundledOnly && !catalog.IsBundledLibrary(lib) {
				continue
			}
			resp := LibraryResponse{
				ID:           lib.ID(),
				Extension:    lib.Extension,
				Name:         lib.Name,
				Webpack:      lib.Webpack,
				Scope:        lib.Scope(),
				JS:           lib.JS,
				Dependencies: lib.Dependencies,
			}
			if catalog.IsBundledLibrary(lib) {
				if entries, err := catalog.EntryPointsOf(lib); err == nil {
					resp.EntryPoints = entries
				}
			}
			libraries = append(libraries, resp)
		}
	}
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].ID < libraries[j].ID })

	return c.JSON(fiber.Map{
		"libraries": libraries,
		"count":     len(libraries),
	})
}

func (s *Server) handleEntryPoints(c *fiber.Ctx) error {
	entries, err := s.deps.Catalog.ListEntryPoints(c.UserContext())
	if err != nil {
		if errors.Is(err, catalog.ErrFileIDCollision) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return err
	}
	return c.JSON(fiber.Map{
		"entry_points": entries,
		"count":        len(entries),
	})
}

func (s *Server) handleBundleMapping(c *fiber.Ctx) error {
	mapping, err := s.deps.Info.BundleMapping(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(MappingResponse{
		Storage:    s.deps.Info.MappingStorage(),
		OutputPath: s.deps.Info.OutputPath(),
		Mapping:    mapping,
	})
}

func (s *Server) handleDevServer(c *fiber.Ctx) error {
	ctx := c.UserContext()
	info, err := s.deps.Info.DevServer(ctx)
	if err != nil {
		return err
	}
	return c.JSON(DevServerResponse{
		DevServerInfo: info,
		Available:     s.deps.Probe.Available(ctx, info),
	})
}
