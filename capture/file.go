package capture

import "os"

// Open opens a capture file written by WriteHeader/WriteDescriptorTable/
// WriteThreadSectionHeader and returns a Reader over it, mirroring
// perffile.Open's convenience constructor.
func Open(name string) (*Reader, *os.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}
