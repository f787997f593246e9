// Package docmeta derives document classification metadata from drive
// folder structure. Vessel drives follow a numbered top-level layout
// (01_General, 02_Engineering, ...) with system folders nested below.
package docmeta

import "strings"

// Metadata classifies a file by where it lives in the drive.
type Metadata struct {
	SystemPath  string   `json:"system_path"` // directory portion of the path
	Directories []string `json:"directories"`
	DocType     string   `json:"doc_type"`
	SystemTag   string   `json:"system_tag"`
	Filename    string   `json:"filename"`
}

// Extractor maps a drive-relative file path to classification metadata.
type Extractor func(path string) Metadata

// systemTagEntry keeps matching order stable; earlier entries win on
// substring matches within a single directory name.
type systemTagEntry struct {
	dir string
	tag string
}

var systemTagMapping = []systemTagEntry{
	{"Electrical", "electrical"},
	{"HVAC", "hvac"},
	{"Plumbing", "plumbing"},
	{"Engines", "propulsion"},
	{"Generators", "power"},
	{"Generator", "power"},
	{"Navigation", "navigation"},
	{"Communications", "communications"},
	{"Comms", "communications"},
	{"Fire", "safety"},
	{"Safety", "safety"},
	{"Galley", "galley"},
	{"Kitchen", "galley"},
	{"Sanitation", "sanitation"},
	{"Water", "water"},
	{"Fuel", "fuel"},
	{"Hydraulic", "hydraulic"},
	{"Hydraulics", "hydraulic"},
	{"Deck", "deck"},
	{"Hull", "hull"},
	{"Interior", "interior"},
	{"AV", "av"},
	{"Audio", "av"},
	{"Video", "av"},
	{"Entertainment", "entertainment"},
	{"CCTV", "security"},
	{"Security", "security"},
	{"Stabilizers", "stabilization"},
	{"Thrusters", "propulsion"},
	{"Tender", "tender"},
	{"Tenders", "tender"},
}

var docTypeMapping = map[string]string{
	"01_General":        "general",
	"02_Engineering":    "schematic",
	"03_Systems":        "schematic",
	"04_Manuals":        "manual",
	"05_Drawings":       "drawing",
	"06_Procedures":     "sop",
	"07_Safety":         "sop",
	"08_Maintenance":    "maintenance_log",
	"09_Logs":           "log",
	"10_Inspections":    "inspection",
	"11_Vendors":        "vendor_doc",
	"12_Warranties":     "warranty",
	"13_Certifications": "certification",
	"14_Photos":         "photo",
	"15_Videos":         "video",
}

// altDocTypeMapping handles drives without the numbered prefix.
var altDocTypeMapping = map[string]string{
	"engineering":    "schematic",
	"manuals":        "manual",
	"procedures":     "sop",
	"safety":         "sop",
	"maintenance":    "maintenance_log",
	"logs":           "log",
	"inspections":    "inspection",
	"inspection":     "inspection",
	"vendors":        "vendor_doc",
	"warranties":     "warranty",
	"warranty":       "warranty",
	"certifications": "certification",
	"certs":          "certification",
	"photos":         "photo",
	"videos":         "video",
	"drawings":       "drawing",
	"schematics":     "schematic",
}

// Extract derives metadata from a drive-relative file path such as
// "/02_Engineering/Electrical/main_panel.pdf". Files at the drive root
// classify as general/general.
func Extract(path string) Metadata {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Metadata{Directories: []string{}, DocType: "general", SystemTag: "general"}
	}

	parts := strings.Split(trimmed, "/")
	filename := parts[len(parts)-1]
	dirs := parts[:len(parts)-1]

	if len(dirs) == 0 {
		return Metadata{Directories: []string{}, DocType: "general", SystemTag: "general", Filename: filename}
	}

	return Metadata{
		SystemPath:  strings.Join(dirs, "/"),
		Directories: dirs,
		DocType:     docType(dirs[0]),
		SystemTag:   systemTag(dirs),
		Filename:    filename,
	}
}

func docType(topLevel string) string {
	if dt, ok := docTypeMapping[topLevel]; ok {
		return dt
	}
	if dt, ok := altDocTypeMapping[strings.ToLower(topLevel)]; ok {
		return dt
	}
	return "general"
}

// systemTag scans the directory chain for a known system folder. An
// exact name match anywhere in the chain wins outright; otherwise the
// deepest directory containing a known name as a substring decides.
func systemTag(dirs []string) string {
	tag := "general"
	for _, dir := range dirs {
		matched := false
		for _, entry := range systemTagMapping {
			if entry.dir == dir {
				return entry.tag
			}
			if !matched && strings.Contains(strings.ToLower(dir), strings.ToLower(entry.dir)) {
				tag = entry.tag
				matched = true
			}
		}
	}
	return tag
}
