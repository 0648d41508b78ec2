package geo

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"

	"github.com/oneweather/oneweather/internal/models"
)

// Index assigns coordinates to hexagonal cells at a fixed H3 resolution.
// All methods are pure; an Index is safe for concurrent use.
type Index struct {
	resolution int
}

func NewIndex(resolution int) *Index {
	return &Index{resolution: resolution}
}

func (ix *Index) Resolution() int {
	return ix.resolution
}

// CellOf maps a coordinate to its cell. The same coordinate always maps to
// the same cell.
func (ix *Index) CellOf(lat, lon float64) (models.CellID, error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return 0, err
	}
	cell := h3.LatLngToCell(h3.NewLatLng(lat, lon), ix.resolution)
	return models.CellID(cell), nil
}

// Neighbors returns the cells within k rings of the given cell, excluding
// the cell itself.
func (ix *Index) Neighbors(cell models.CellID, k int) []models.CellID {
	disk := h3.Cell(cell).GridDisk(k)
	out := make([]models.CellID, 0, len(disk))
	for _, c := range disk {
		if models.CellID(c) == cell {
			continue
		}
		out = append(out, models.CellID(c))
	}
	return out
}

// Centroid returns the cell's center coordinate.
func (ix *Index) Centroid(cell models.CellID) (lat, lon float64) {
	ll := h3.CellToLatLng(h3.Cell(cell))
	return ll.Lat, ll.Lng
}

// ApproxDistanceKm is the great-circle distance between two cell centroids.
func (ix *Index) ApproxDistanceKm(a, b models.CellID) float64 {
	return h3.GreatCircleDistanceKm(h3.CellToLatLng(h3.Cell(a)), h3.CellToLatLng(h3.Cell(b)))
}

// DistanceToCentroidKm is the great-circle distance from a coordinate to a
// cell's centroid, used to validate station-to-cell associations.
func (ix *Index) DistanceToCentroidKm(cell models.CellID, lat, lon float64) (float64, error) {
	if err := validateCoordinate(lat, lon); err != nil {
		return 0, err
	}
	return h3.GreatCircleDistanceKm(h3.NewLatLng(lat, lon), h3.CellToLatLng(h3.Cell(cell))), nil
}

func validateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", models.ErrInvalidCoordinate, lat, lon)
	}
	return nil
}
