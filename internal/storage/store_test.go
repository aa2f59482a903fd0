package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lprd/internal/pipeline"
	"lprd/internal/plate"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "lpr.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvent(id, plateNumber string, authorized bool, ts time.Time) *pipeline.DetectionEvent {
	return &pipeline.DetectionEvent{
		ID:                  id,
		Plate:               plateNumber,
		RawText:             plateNumber,
		Format:              plate.FormatStandard,
		BoxX:                100,
		BoxY:                200,
		BoxWidth:            160,
		BoxHeight:           60,
		DetectionConfidence: 0.8,
		OCRConfidence:       0.9,
		FrameSeq:            42,
		Location:            "main gate",
		Authorized:          authorized,
		Timestamp:           ts,
	}
}

func TestSaveAndQueryDetection(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveDetection(sampleEvent("d1", "ABC123", true, ts)))

	records, err := s.RecentDetections("", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "d1", r.ID)
	assert.Equal(t, "ABC123", r.Plate)
	assert.Equal(t, string(plate.FormatStandard), r.Format)
	assert.Equal(t, 100, r.BoxX)
	assert.Equal(t, 160, r.BoxWidth)
	assert.Equal(t, 0.9, r.OCRConfidence)
	assert.Equal(t, uint64(42), r.FrameSeq)
	assert.True(t, r.Authorized)
}

func TestSaveDetectionWritesAccessLog(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveDetection(sampleEvent("d1", "ABC123", true, ts)))
	require.NoError(t, s.SaveDetection(sampleEvent("d2", "XYZ789", false, ts.Add(time.Second))))

	entries, err := s.AccessLog("", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "XYZ789", entries[0].Plate)
	assert.False(t, entries[0].Granted)
	assert.Equal(t, "vehicle not authorized", entries[0].Reason)
	assert.Equal(t, "ABC123", entries[1].Plate)
	assert.True(t, entries[1].Granted)
	assert.Equal(t, "registered vehicle", entries[1].Reason)

	filtered, err := s.AccessLog("ABC123", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}

func TestDuplicateDetectionIDRejected(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now()

	require.NoError(t, s.SaveDetection(sampleEvent("d1", "ABC123", false, ts)))
	assert.Error(t, s.SaveDetection(sampleEvent("d1", "ABC123", false, ts)))

	// The failed transaction must not leave a dangling access entry.
	entries, err := s.AccessLog("", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestIsAuthorized(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterVehicle(&VehicleRecord{
		Plate:      "ABC123",
		OwnerName:  "J. Rojas",
		Authorized: true,
	}))
	require.NoError(t, s.RegisterVehicle(&VehicleRecord{
		Plate:      "XYZ789",
		Authorized: false,
	}))

	ok, err := s.IsAuthorized("ABC123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAuthorized("XYZ789")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown plates are denied, not errors.
	ok, err = s.IsAuthorized("ZZZ000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterVehicleUpsert(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RegisterVehicle(&VehicleRecord{Plate: "ABC123", Authorized: true}))
	require.NoError(t, s.RegisterVehicle(&VehicleRecord{Plate: "ABC123", OwnerName: "M. Vargas", Authorized: false}))

	v, err := s.GetVehicle("ABC123")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "M. Vargas", v.OwnerName)
	assert.False(t, v.Authorized)
}

func TestGetVehicleMissing(t *testing.T) {
	s := newTestStore(t)
	v, err := s.GetVehicle("ABC123")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestUnregisterVehicle(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RegisterVehicle(&VehicleRecord{Plate: "ABC123", Authorized: true}))
	require.NoError(t, s.UnregisterVehicle("ABC123"))

	ok, err := s.IsAuthorized("ABC123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentDetectionsFilterAndLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveDetection(sampleEvent("d1", "ABC123", false, base)))
	require.NoError(t, s.SaveDetection(sampleEvent("d2", "XYZ789", false, base.Add(time.Second))))
	require.NoError(t, s.SaveDetection(sampleEvent("d3", "ABC123", false, base.Add(2*time.Second))))

	byPlate, err := s.RecentDetections("ABC123", 10)
	require.NoError(t, err)
	require.Len(t, byPlate, 2)
	assert.Equal(t, "d3", byPlate[0].ID)

	limited, err := s.RecentDetections("", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "d3", limited[0].ID)
}

func TestDeleteOldDetections(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC()

	require.NoError(t, s.SaveDetection(sampleEvent("d1", "ABC123", false, base.Add(-time.Hour))))
	require.NoError(t, s.SaveDetection(sampleEvent("d2", "ABC123", false, base)))

	deleted, err := s.DeleteOldDetections(base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	records, err := s.RecentDetections("", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "d2", records[0].ID)
}
