package region_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenCubicChunks/RegionLib/keys"
	"github.com/OpenCubicChunks/RegionLib/region"
)

func build3D(t *testing.T, dir string, rk region.RegionKey) *region.File {
	t.Helper()
	b := &region.FileBuilder{
		Dir:         dir,
		Key:         rk,
		KeyProvider: keys.Provider3D{},
		SectorSize:  512,
	}
	r, err := b.Build()
	if err != nil {
		t.Fatalf("failed to build region: %s", err)
	}
	return r
}

func TestRegionFile(t *testing.T) {
	t.Run("simple roundtrip survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(0, 0, 0)
		payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

		r := build3D(t, dir, key.RegionKey())
		if err := r.WriteValue(key, payload); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("failed to close: %s", err)
		}

		r = build3D(t, dir, key.RegionKey())
		defer r.Close()
		got, err := r.ReadValue(key)
		if err != nil {
			t.Fatalf("failed to read: %s", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("expected %v, got %v", payload, got)
		}
	})

	t.Run("header and entry bytes are bit exact", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(0, 0, 0)
		payload := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

		r := build3D(t, dir, key.RegionKey())
		if err := r.WriteValue(key, payload); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("failed to close: %s", err)
		}

		raw, err := os.ReadFile(filepath.Join(dir, key.RegionKey().Name()))
		if err != nil {
			t.Fatalf("failed to read raw file: %s", err)
		}

		// 32768 ids * 4 bytes = 256 header sectors, so the first data
		// sector is 256 and id 0's packed word is offset<<8 | size
		if got := binary.BigEndian.Uint32(raw[0:4]); got != 256<<8|1 {
			t.Fatalf("unexpected sector map word %#08x", got)
		}
		entry := raw[256*512:]
		if got := binary.BigEndian.Uint32(entry[0:4]); got != uint32(len(payload)) {
			t.Fatalf("unexpected entry length %d", got)
		}
		if !bytes.Equal(entry[4:4+len(payload)], payload) {
			t.Fatal("entry payload mismatch")
		}
		if len(raw)%512 != 0 {
			t.Fatalf("file size %d is not sector aligned", len(raw))
		}
	})

	t.Run("interleaved random writes and reads", func(t *testing.T) {
		dir := t.TempDir()
		rk := keys.NewEntryLocation3D(0, 0, 0).RegionKey()
		r := build3D(t, dir, rk)
		defer r.Close()

		rnd := rand.New(rand.NewSource(42))
		live := make(map[keys.EntryLocation3D][]byte)

		for i := 0; i < 1000; i++ {
			key := keys.NewEntryLocation3D(rnd.Intn(5), rnd.Intn(5), rnd.Intn(5))
			data := make([]byte, rnd.Intn(3*512)+1)
			rnd.Read(data)

			if err := r.WriteValue(key, data); err != nil {
				t.Fatalf("write %d failed: %s", i, err)
			}
			live[key] = data

			for k, want := range live {
				got, err := r.ReadValue(k)
				if err != nil {
					t.Fatalf("read of %v failed after write %d: %s", k, i, err)
				}
				if !bytes.Equal(got, want) {
					t.Fatalf("read of %v returned wrong bytes after write %d", k, i)
				}
			}
		}
	})

	t.Run("overwrite replaces and delete removes", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(1, 2, 3)
		r := build3D(t, dir, key.RegionKey())
		defer r.Close()

		if err := r.WriteValue(key, []byte("first")); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if err := r.WriteValue(key, []byte("second")); err != nil {
			t.Fatalf("failed to overwrite: %s", err)
		}
		got, err := r.ReadValue(key)
		if err != nil || string(got) != "second" {
			t.Fatalf("expected %q, got %q (err %v)", "second", got, err)
		}

		if err := r.WriteValue(key, nil); err != nil {
			t.Fatalf("failed to delete: %s", err)
		}
		got, err = r.ReadValue(key)
		if err != nil {
			t.Fatalf("failed to read after delete: %s", err)
		}
		if got != nil {
			t.Fatalf("expected no value after delete, got %v", got)
		}
		if r.HasValue(key) {
			t.Fatal("expected HasValue to be false after delete")
		}
	})

	t.Run("rejects values over the inline limit", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(0, 0, 0)
		r := build3D(t, dir, key.RegionKey())
		defer r.Close()

		if err := r.WriteValue(key, []byte("keep")); err != nil {
			t.Fatalf("failed to write: %s", err)
		}

		var unsupported *region.UnsupportedDataError
		err := r.WriteValue(key, make([]byte, 255*512))
		if !errors.As(err, &unsupported) {
			t.Fatalf("expected UnsupportedDataError, got %v", err)
		}

		// the failed write must leave the previous value intact
		got, err := r.ReadValue(key)
		if err != nil || string(got) != "keep" {
			t.Fatalf("expected %q after failed write, got %q (err %v)", "keep", got, err)
		}
	})

	t.Run("batched writes collect unsupported keys", func(t *testing.T) {
		dir := t.TempDir()
		good := keys.NewEntryLocation3D(0, 0, 0)
		bad := keys.NewEntryLocation3D(0, 0, 1)
		r := build3D(t, dir, good.RegionKey())
		defer r.Close()

		err := r.WriteValues(map[region.Key][]byte{
			good: []byte("ok"),
			bad:  make([]byte, 255*512),
		})
		var multi *region.MultiUnsupportedDataError
		if !errors.As(err, &multi) {
			t.Fatalf("expected MultiUnsupportedDataError, got %v", err)
		}
		if len(multi.Children) != 1 {
			t.Fatalf("expected 1 failed key, got %d", len(multi.Children))
		}
		if _, ok := multi.Children[region.Key(bad)]; !ok {
			t.Fatal("expected the oversized key among the failures")
		}

		got, err := r.ReadValue(good)
		if err != nil || string(got) != "ok" {
			t.Fatalf("the supported key should still be written, got %q (err %v)", got, err)
		}
	})

	t.Run("corrupted length fails the read only", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(0, 0, 0)
		other := keys.NewEntryLocation3D(0, 0, 1)

		r := build3D(t, dir, key.RegionKey())
		if err := r.WriteValue(key, []byte("doomed")); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if err := r.WriteValue(other, []byte("fine")); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if err := r.Close(); err != nil {
			t.Fatalf("failed to close: %s", err)
		}

		// blow up the stored length of the first entry
		path := filepath.Join(dir, key.RegionKey().Name())
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			t.Fatalf("failed to open raw file: %s", err)
		}
		var word [4]byte
		binary.BigEndian.PutUint32(word[:], 1<<20)
		if _, err := f.WriteAt(word[:], 256*512); err != nil {
			t.Fatalf("failed to corrupt entry: %s", err)
		}
		f.Close()

		r = build3D(t, dir, key.RegionKey())
		defer r.Close()

		var corrupted *region.CorruptedDataError
		if _, err := r.ReadValue(key); !errors.As(err, &corrupted) {
			t.Fatalf("expected CorruptedDataError, got %v", err)
		}
		got, err := r.ReadValue(other)
		if err != nil || string(got) != "fine" {
			t.Fatalf("the intact entry should still read, got %q (err %v)", got, err)
		}
	})

	t.Run("iterates present keys in id order", func(t *testing.T) {
		dir := t.TempDir()
		rk := keys.NewEntryLocation3D(0, 0, 0).RegionKey()
		r := build3D(t, dir, rk)
		defer r.Close()

		want := []keys.EntryLocation3D{
			keys.NewEntryLocation3D(0, 0, 1),
			keys.NewEntryLocation3D(0, 1, 0),
			keys.NewEntryLocation3D(2, 0, 0),
		}
		for _, k := range want {
			if err := r.WriteValue(k, []byte("x")); err != nil {
				t.Fatalf("failed to write: %s", err)
			}
		}

		var got []region.Key
		if err := r.ForEachKey(func(k region.Key) error {
			got = append(got, k)
			return nil
		}); err != nil {
			t.Fatalf("failed to iterate: %s", err)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d keys, got %d", len(want), len(got))
		}
		for i, k := range want {
			if got[i] != region.Key(k) {
				t.Fatalf("expected %v at %d, got %v", k, i, got[i])
			}
		}
	})

	t.Run("operations on a closed region fail", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation3D(0, 0, 0)
		r := build3D(t, dir, key.RegionKey())
		if err := r.Close(); err != nil {
			t.Fatalf("failed to close: %s", err)
		}

		if err := r.WriteValue(key, []byte("x")); !errors.Is(err, region.ErrAlreadyClosed) {
			t.Fatalf("expected ErrAlreadyClosed, got %v", err)
		}
		if _, err := r.ReadValue(key); !errors.Is(err, region.ErrAlreadyClosed) {
			t.Fatalf("expected ErrAlreadyClosed, got %v", err)
		}
	})
}

func TestRegionFileSpecialEntries(t *testing.T) {
	newRegion := func(t *testing.T, dir string, rk region.RegionKey, entries []region.SpecialEntry) *region.File {
		t.Helper()
		b := &region.FileBuilder{
			Dir:            dir,
			Key:            rk,
			KeyProvider:    keys.Provider2D{},
			SectorSize:     512,
			SpecialEntries: entries,
		}
		r, err := b.Build()
		if err != nil {
			t.Fatalf("failed to build region: %s", err)
		}
		return r
	}

	t.Run("write special and read back the synthetic value", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation2D(0, 0)
		marker := "empty"
		synthetic := []byte("synthetic")

		r := newRegion(t, dir, key.RegionKey(), []region.SpecialEntry{{
			Marker:   marker,
			RawValue: 0xFFFFFFFF,
			Reader: func(region.Key) ([]byte, error) {
				return synthetic, nil
			},
		}})
		defer r.Close()

		if err := r.WriteSpecial(key, marker); err != nil {
			t.Fatalf("failed to write special: %s", err)
		}
		if !r.HasValue(key) {
			t.Fatal("special entries should count as present")
		}
		got, err := r.ReadValue(key)
		if err != nil || !bytes.Equal(got, synthetic) {
			t.Fatalf("expected %q, got %q (err %v)", synthetic, got, err)
		}

		if err := r.WriteSpecial(key, "unregistered"); err == nil {
			t.Fatal("expected an error for an unregistered marker")
		}
	})

	t.Run("conflicting allocation invokes the handler", func(t *testing.T) {
		dir := t.TempDir()
		key := keys.NewEntryLocation2D(0, 0)

		// 1024 ids * 4 bytes = 8 header sectors, so the first data
		// allocation is exactly (offset 8, size 1)
		var captured []byte
		r := newRegion(t, dir, key.RegionKey(), []region.SpecialEntry{{
			Marker:   "sentinel",
			RawValue: 8<<8 | 1,
			Reader: func(region.Key) ([]byte, error) {
				return captured, nil
			},
			OnConflict: func(k region.Key, value []byte) ([]byte, error) {
				captured = append([]byte(nil), value...)
				return value, nil
			},
		}})
		defer r.Close()

		payload := []byte("collides")
		if err := r.WriteValue(key, payload); err != nil {
			t.Fatalf("failed to write: %s", err)
		}
		if captured == nil {
			t.Fatal("conflict handler was not invoked")
		}
		got, err := r.ReadValue(key)
		if err != nil || !bytes.Equal(got, payload) {
			t.Fatalf("expected %q via the special reader, got %q (err %v)", payload, got, err)
		}
	})
}
