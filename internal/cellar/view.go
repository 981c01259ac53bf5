package cellar

import (
	"errors"

	"github.com/blackwell-systems/tapline/internal/resolver"
	"github.com/blackwell-systems/tapline/internal/store"
)

// Installed reports the indexed keg for a package name, in the shape the
// resolver reconciles plans against. It satisfies resolver.InstalledView.
func (c *Cellar) Installed(name string) (resolver.InstalledPackage, bool) {
	rec, err := c.store.GetKeg(name)
	if err != nil {
		if !errors.Is(err, store.ErrNotExist) {
			c.log.Warn().Err(err).Str("keg", name).Msg("index lookup failed")
		}
		return resolver.InstalledPackage{}, false
	}
	k := c.fromRecord(rec)
	return resolver.InstalledPackage{
		Name:     k.Name,
		Version:  k.Version,
		Revision: k.Revision,
		Variant:  k.Variant,
		Options:  k.Options,
	}, true
}
