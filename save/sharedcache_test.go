package save

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/OpenCubicChunks/RegionLib/keys"
	"github.com/OpenCubicChunks/RegionLib/region"
)

func TestSharedCache(t *testing.T) {
	t.Run("eviction keeps the population bounded", func(t *testing.T) {
		dir := t.TempDir()
		cache := NewSharedCache(4)
		section := NewSaveSection2D(dir, cache)

		// 10 distinct regions, each getting a small payload
		for i := 0; i < 10; i++ {
			key := keys.NewEntryLocation2D(i*32, 0)
			if err := section.Save(key, []byte(fmt.Sprintf("region %d", i))); err != nil {
				t.Fatalf("failed to save region %d: %s", i, err)
			}
			if used := cache.usedTickets.Load(); used > 4 {
				t.Fatalf("cache holds %d regions, limit is 4", used)
			}
		}

		// re-reading an evicted region reopens it with the right bytes
		for i := 0; i < 10; i++ {
			key := keys.NewEntryLocation2D(i*32, 0)
			got, err := section.Load(key, true)
			if err != nil {
				t.Fatalf("failed to load region %d: %s", i, err)
			}
			if want := fmt.Sprintf("region %d", i); string(got) != want {
				t.Fatalf("expected %q, got %q", want, got)
			}
			if used := cache.usedTickets.Load(); used > 4 {
				t.Fatalf("cache holds %d regions, limit is 4", used)
			}
		}
	})

	t.Run("minimum size cache still makes progress", func(t *testing.T) {
		dir := t.TempDir()
		cache := NewSharedCache(2)
		section := NewSaveSection2D(dir, cache)

		for i := 0; i < 6; i++ {
			key := keys.NewEntryLocation2D(i*32, 0)
			if err := section.Save(key, []byte{byte(i)}); err != nil {
				t.Fatalf("failed to save region %d: %s", i, err)
			}
		}
		for i := 0; i < 6; i++ {
			got, err := section.Load(keys.NewEntryLocation2D(i*32, 0), true)
			if err != nil || !bytes.Equal(got, []byte{byte(i)}) {
				t.Fatalf("load of region %d mismatch (err %v)", i, err)
			}
		}
	})

	t.Run("missing regions do not consume tickets", func(t *testing.T) {
		dir := t.TempDir()
		cache := NewSharedCache(4)
		factory := NewInlineRegionFactory(keys.Provider2D{}, dir, region.DefaultSectorSize)

		for i := 0; i < 10; i++ {
			rk := keys.NewEntryLocation2D(i*32, 0).RegionKey()
			done, err := cache.ForRegion(rk, factory, false, func(region.Region) error {
				t.Fatal("callback must not run for a missing region")
				return nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if done {
				t.Fatal("expected done=false for a missing region")
			}
		}
		if used := cache.usedTickets.Load(); used != 0 {
			t.Fatalf("expected no tickets in use, got %d", used)
		}
	})

	t.Run("close purges every entry", func(t *testing.T) {
		dir := t.TempDir()
		cache := NewSharedCache(8)
		section := NewSaveSection2D(dir, cache)

		for i := 0; i < 3; i++ {
			if err := section.Save(keys.NewEntryLocation2D(i*32, 0), []byte("x")); err != nil {
				t.Fatalf("failed to save: %s", err)
			}
		}
		if err := cache.Close(); err != nil {
			t.Fatalf("failed to close cache: %s", err)
		}
		if used := cache.usedTickets.Load(); used != 0 {
			t.Fatalf("expected an empty cache after close, %d tickets in use", used)
		}
	})

	t.Run("concurrent writers on disjoint regions", func(t *testing.T) {
		dir := t.TempDir()
		cache := NewSharedCache(4)
		section := NewSaveSection2D(dir, cache)

		const workers = 8
		const perWorker = 20

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					key := keys.NewEntryLocation2D(w*32, i)
					if err := section.Save(key, []byte(fmt.Sprintf("%d/%d", w, i))); err != nil {
						errs <- err
						return
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent save failed: %s", err)
		}

		for w := 0; w < workers; w++ {
			for i := 0; i < perWorker; i++ {
				key := keys.NewEntryLocation2D(w*32, i)
				got, err := section.Load(key, true)
				if err != nil {
					t.Fatalf("failed to load: %s", err)
				}
				if want := fmt.Sprintf("%d/%d", w, i); string(got) != want {
					t.Fatalf("expected %q, got %q", want, got)
				}
			}
		}
	})

	t.Run("rejects sizes below 2", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatal("expected a panic for size 1")
			}
		}()
		NewSharedCache(1)
	})
}

func TestCachedRegionProvider(t *testing.T) {
	t.Run("evictions close and reopen transparently", func(t *testing.T) {
		dir := t.TempDir()
		factory := NewInlineRegionFactory(keys.Provider2D{}, dir, region.DefaultSectorSize)
		provider := NewCachedRegionProvider(factory, 2)

		for i := 0; i < 5; i++ {
			key := keys.NewEntryLocation2D(i*32, 0)
			if err := provider.ForRegion(key.RegionKey(), func(r region.Region) error {
				return r.WriteValue(key, []byte{byte(i)})
			}); err != nil {
				t.Fatalf("failed to write region %d: %s", i, err)
			}
		}

		for i := 0; i < 5; i++ {
			key := keys.NewEntryLocation2D(i*32, 0)
			var got []byte
			done, err := provider.ForExistingRegion(key.RegionKey(), func(r region.Region) error {
				v, err := r.ReadValue(key)
				got = v
				return err
			})
			if err != nil || !done {
				t.Fatalf("failed to read region %d (done %t): %v", i, done, err)
			}
			if !bytes.Equal(got, []byte{byte(i)}) {
				t.Fatalf("region %d returned %v", i, got)
			}
		}

		if err := provider.Close(); err != nil {
			t.Fatalf("failed to close: %s", err)
		}
		if err := provider.Close(); err != region.ErrAlreadyClosed {
			t.Fatalf("expected ErrAlreadyClosed, got %v", err)
		}
	})
}
