// Package assets substitutes webpack bundles for the scripts of bundled
// libraries when a page's JS assets are resolved.
package assets

import (
	"context"
	"encoding/json"
	"slices"
)

// JSDefault is the default group of JS descriptors
const JSDefault = 0

// Scopes
const (
	ScopeHeader = "header"
	ScopeFooter = "footer"
)

// Descriptor describes one asset the page loads: data, type, scope, group,
// weight and the flags the renderer reads.
type Descriptor map[string]any

func (d Descriptor) clone() Descriptor {
	out := make(Descriptor, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Collection is an insertion ordered set of descriptors keyed by path
type Collection struct {
	keys  []string
	items map[string]Descriptor
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{items: map[string]Descriptor{}}
}

// Set stores d under key. A new key goes last, an existing one keeps its place.
func (c *Collection) Set(key string, d Descriptor) {
	if c.items == nil {
		c.items = map[string]Descriptor{}
	}
	if _, ok := c.items[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.items[key] = d
}

// Get returns the descriptor stored under key
func (c *Collection) Get(key string) (Descriptor, bool) {
	if c == nil {
		return nil, false
	}
	d, ok := c.items[key]
	return d, ok
}

// Delete removes key
func (c *Collection) Delete(key string) {
	if _, ok := c.items[key]; !ok {
		return
	}
	delete(c.items, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
}

// Keys returns the keys in order
func (c *Collection) Keys() []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.keys)
}

// Len returns the number of descriptors
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone copies the collection and its descriptors
func (c *Collection) Clone() *Collection {
	out := NewCollection()
	if c == nil {
		return out
	}
	for _, key := range c.keys {
		out.Set(key, c.items[key].clone())
	}
	return out
}

// MarshalJSON encodes the collection as an ordered array, each item
// carrying its key.
func (c *Collection) MarshalJSON() ([]byte, error) {
	items := make([]map[string]any, 0, c.Len())
	if c != nil {
		for _, key := range c.keys {
			item := map[string]any{"key": key}
			for k, v := range c.items[key] {
				item[k] = v
			}
			items = append(items, item)
		}
	}
	return json.Marshal(items)
}

// JSAssets are the scripts of a page split by scope
type JSAssets struct {
	Header *Collection `json:"header"`
	Footer *Collection `json:"footer"`
}

// NewJSAssets creates empty header and footer collections
func NewJSAssets() JSAssets {
	return JSAssets{Header: NewCollection(), Footer: NewCollection()}
}

// Scope returns the collection for scope, creating it when missing
func (a *JSAssets) Scope(scope string) *Collection {
	if scope == ScopeHeader {
		if a.Header == nil {
			a.Header = NewCollection()
		}
		return a.Header
	}
	if a.Footer == nil {
		a.Footer = NewCollection()
	}
	return a.Footer
}

// AttachedAssets are the libraries a page asks for
type AttachedAssets struct {
	Libraries     []string `json:"libraries"`
	AlreadyLoaded []string `json:"already_loaded,omitempty"`
}

// Clone copies the asset lists
func (a *AttachedAssets) Clone() *AttachedAssets {
	return &AttachedAssets{
		Libraries:     slices.Clone(a.Libraries),
		AlreadyLoaded: slices.Clone(a.AlreadyLoaded),
	}
}

// Resolver is the CMS asset resolver the rewriter wraps
type Resolver interface {
	// CSSAssets returns the stylesheets of assets
	CSSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (*Collection, error)

	// JSAssets returns the scripts of assets
	JSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (JSAssets, error)

	// LibrariesToLoad expands assets.Libraries with their dependencies, in
	// load order, leaving out what is already loaded.
	LibrariesToLoad(ctx context.Context, assets *AttachedAssets) ([]string, error)
}
