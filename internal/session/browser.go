package session

import "strings"

// BrowserItem is one node of the device browser.
type BrowserItem struct {
	Name       string        `json:"name"`
	URI        string        `json:"uri,omitempty"`
	IsFolder   bool          `json:"is_folder"`
	IsDevice   bool          `json:"is_device"`
	IsLoadable bool          `json:"is_loadable"`
	Children   []BrowserItem `json:"children,omitempty"`
}

// browserCategory is a top-level browser section.
type browserCategory struct {
	key  string
	item BrowserItem
}

func device(category, name string) BrowserItem {
	return BrowserItem{
		Name:       name,
		URI:        "query:" + category + "#" + strings.ReplaceAll(name, " ", "%20"),
		IsDevice:   true,
		IsLoadable: true,
	}
}

func folder(name string, children ...BrowserItem) BrowserItem {
	return BrowserItem{Name: name, IsFolder: true, Children: children}
}

// defaultBrowser is the static catalogue served by the demo host.
func defaultBrowser() []browserCategory {
	return []browserCategory{
		{"instruments", folder("Instruments",
			device("Synths", "Analog"),
			device("Synths", "Drift"),
			device("Synths", "Operator"),
			device("Synths", "Wavetable"),
			device("Synths", "Simpler"),
			device("Synths", "Sampler"),
			folder("Drum Rack", device("Drums", "Drum Rack")),
		)},
		{"sounds", folder("Sounds",
			folder("Bass", device("Sounds", "Sub Bass"), device("Sounds", "Reese Bass")),
			folder("Pad", device("Sounds", "Warm Pad"), device("Sounds", "Glass Pad")),
		)},
		{"drums", folder("Drums",
			device("Drums", "808 Core Kit"),
			device("Drums", "909 Core Kit"),
			device("Drums", "Acoustic Kit"),
		)},
		{"audio_effects", folder("Audio Effects",
			device("AudioFx", "Auto Filter"),
			device("AudioFx", "Compressor"),
			device("AudioFx", "EQ Eight"),
			device("AudioFx", "Glue Compressor"),
			device("AudioFx", "Reverb"),
			device("AudioFx", "Delay"),
			device("AudioFx", "Saturator"),
		)},
		{"midi_effects", folder("MIDI Effects",
			device("MidiFx", "Arpeggiator"),
			device("MidiFx", "Chord"),
			device("MidiFx", "Scale"),
			device("MidiFx", "Velocity"),
		)},
	}
}

// prune copies item down to maxDepth levels of children.
func prune(item BrowserItem, depth, maxDepth int) BrowserItem {
	out := item
	out.Children = nil
	if !item.IsFolder || depth >= maxDepth {
		return out
	}
	for _, child := range item.Children {
		out.Children = append(out.Children, prune(child, depth+1, maxDepth))
	}
	return out
}

// searchResult is one loadable item matching a query.
type searchResult struct {
	Name       string `json:"name"`
	URI        string `json:"uri"`
	Category   string `json:"category"`
	IsLoadable bool   `json:"is_loadable"`
}

// search walks item depth first collecting loadable items whose name
// contains query, case-insensitively.
func search(item BrowserItem, category, query string, max int, out []searchResult) []searchResult {
	for _, child := range item.Children {
		if len(out) >= max {
			return out
		}
		if child.IsLoadable && strings.Contains(strings.ToLower(child.Name), query) {
			out = append(out, searchResult{Name: child.Name, URI: child.URI, Category: category, IsLoadable: true})
		}
		if child.IsFolder {
			out = search(child, category, query, max, out)
		}
	}
	return out
}
