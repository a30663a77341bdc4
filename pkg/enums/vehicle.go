package enums

import "fmt"

// VehicleType is the minimum vehicle a mission requires.
type VehicleType string

const (
	VehicleAny     VehicleType = "any"
	VehicleBike    VehicleType = "bike"
	VehicleScooter VehicleType = "scooter"
	VehicleCar     VehicleType = "car"
	VehicleVan     VehicleType = "van"
)

var validVehicleTypes = []VehicleType{
	VehicleAny,
	VehicleBike,
	VehicleScooter,
	VehicleCar,
	VehicleVan,
}

func (v VehicleType) IsValid() bool {
	for _, candidate := range validVehicleTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVehicleType converts raw input into a VehicleType.
func ParseVehicleType(value string) (VehicleType, error) {
	for _, candidate := range validVehicleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid vehicle type %q", value)
}

// PackageSize describes the bulk of the item being carried.
type PackageSize string

const (
	PackageSmall  PackageSize = "small"
	PackageMedium PackageSize = "medium"
	PackageLarge  PackageSize = "large"
)

var validPackageSizes = []PackageSize{
	PackageSmall,
	PackageMedium,
	PackageLarge,
}

func (p PackageSize) IsValid() bool {
	for _, candidate := range validPackageSizes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePackageSize converts raw input into a PackageSize.
func ParsePackageSize(value string) (PackageSize, error) {
	for _, candidate := range validPackageSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid package size %q", value)
}
