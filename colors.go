package profiler

// Colors is the named color palette supplemented from
// original_source/include/profiler/profiler_colors.h (SPEC_FULL.md §7):
// callers registering descriptors get the same discoverable palette the
// original API ships, instead of hand-picking raw 0x00RRGGBB values.
var Colors = struct {
	Black, Lightgray, Darkgray, White, Red, Green, Blue              uint32
	Magenta, Cyan, Yellow, Darkred, Darkgreen, Darkblue, Darkmagenta uint32
	Darkcyan, Darkyellow, Navy, Teal, Maroon, Purple, Olive          uint32
	Grey, Silver, Orange, Coral, Brick, Clay, Skin, Palegold         uint32
}{
	Black:       0x000000,
	Lightgray:   0x606080,
	Darkgray:    0x202040,
	White:       0xE0E0C0,
	Red:         0xE00000,
	Green:       0x00E000,
	Blue:        0x0000C0,
	Magenta:     0xE000C0,
	Cyan:        0x00E0C0,
	Yellow:      0xE0E000,
	Darkred:     0x600000,
	Darkgreen:   0x006000,
	Darkblue:    0x000040,
	Darkmagenta: 0x600040,
	Darkcyan:    0x006040,
	Darkyellow:  0x606000,
	Navy:        0x000080,
	Teal:        0x008080,
	Maroon:      0x800000,
	Purple:      0x800080,
	Olive:       0x808000,
	Grey:        0x808080,
	Silver:      0xC0C0C0,
	Orange:      0xE0A000,
	Coral:       0xE0A080,
	Brick:       0xE06040,
	Clay:        0xC0A080,
	Skin:        0xE0C080,
	Palegold:    0xE0E080,
}
