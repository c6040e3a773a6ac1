// system_bundle.go: Bundle zero, the runtime itself
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

// RuntimeVersion is the version of the built-in system bundle.
const RuntimeVersion = "1.0.0"

// builtinSystemManifest is used when no system.bundle descriptor is found
// on the search paths.
const builtinSystemManifest = "Manifest-Version: 1.0\n" +
	"Bundle-Name: System Bundle\n" +
	"Bundle-SymbolicName: " + SystemBundleName + "\n" +
	"Bundle-Version: " + RuntimeVersion + "\n" +
	"Bundle-Vendor: AGILira\n"

// SystemBundle is constructed RESOLVED and has no dependencies. Its
// activator publishes the extension point service; Resume populates the
// extension registry and starts the eager bundles.
type SystemBundle struct {
	*Bundle
}

func newSystemBundle(manifest *Manifest, storage BundleStorage, loader *BundleLoader) *SystemBundle {
	b := newBundle(0, manifest, storage, loader)
	b.system = true
	b.state = StateResolved
	return &SystemBundle{Bundle: b}
}

func builtinSystemDescriptor() (*Manifest, BundleStorage) {
	storage := newMemoryStorage("builtin:"+SystemBundleName, map[string][]byte{
		ManifestMFPath: []byte(builtinSystemManifest),
	})
	manifest, err := ParseManifestMF([]byte(builtinSystemManifest), storage.GetPath())
	if err != nil {
		panic(err)
	}
	return manifest, storage
}

// Resume reads every bundle's contributions into the extension registry and
// then starts every eager bundle. Both passes are best effort.
func (s *SystemBundle) Resume() {
	s.loader.ReadAllContributions()
	s.loader.StartAllBundles()
}

// systemActivator publishes runtime services.
type systemActivator struct{}

func (systemActivator) Start(ctx *BundleContext) error {
	ctx.Services().RegisterService(ExtensionPointServiceID, ctx.ExtensionPointService())
	return nil
}

func (systemActivator) Stop(ctx *BundleContext) error {
	ctx.Services().UnRegisterService(ExtensionPointServiceID)
	return nil
}
