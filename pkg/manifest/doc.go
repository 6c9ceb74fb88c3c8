// Package manifest reads Cargo.toml files into typed records and rewrites
// their version fields in place.
//
// Reading goes through [github.com/BurntSushi/toml]. Writing never
// re-serializes the document: [Editor] locates the exact line that holds a
// version string and replaces only the quoted value, so comments, key
// order, whitespace and every unrelated table survive byte for byte.
//
// # Reading
//
//	m, err := manifest.Load("crates/core/Cargo.toml")
//	fmt.Println(m.Package.Name, m.Package.Version)
//	for _, d := range m.Dependencies {
//	    fmt.Println(d.Kind, d.Name, d.Req, d.Path)
//	}
//
// # Editing
//
//	ed := manifest.NewEditor(m.Raw)
//	_ = ed.SetPackageVersion("0.2.0")
//	_, _ = ed.SetDependencyReq(d.Section, d.Key, "0.2.0")
//	os.WriteFile(m.Path, ed.Bytes(), 0o644)
package manifest
