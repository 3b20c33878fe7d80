package gpio

// FakeDriver is a test double that records relay writes.
type FakeDriver struct {
	// Writes contains every logical state written, in order.
	Writes []bool

	// Level is the last logical state written.
	Level bool

	// WriteError, if set, will be returned by Write.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeDriver creates a FakeDriver with the relay released.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

// Write records the requested state.
func (f *FakeDriver) Write(on bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, on)
	f.Level = on
	return nil
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeDriver) Reset() {
	f.Writes = nil
	f.Level = false
	f.Closed = false
	f.WriteError = nil
}
