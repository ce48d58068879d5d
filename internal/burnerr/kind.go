package burnerr

import "fmt"

// Kind is the closed set of failure conditions a burn can end with.
type Kind int

const (
	KindGeneral Kind = iota
	KindMediumNone
	KindMediumBusy
	KindMediumInvalid
	KindMediumNoData
	KindMediumNotRewritable
	KindMediumSpace
	KindMediumNeedReloading
	KindDriveBusy
	KindImageJoliet
	KindDiskSpace
	KindPermission
	KindTmpDirectory
	KindSlowDMA
	KindMissingAppAndPlugin
	KindPluginMisbehavior
	KindOutputNone
	KindCancel
	KindDangerous
)

// Category groups kinds by the recovery the controller applies to them.
type Category int

const (
	// CategoryFatal ends the current call.
	CategoryFatal Category = iota
	// CategoryMedium is resolved by asking for another medium and retrying.
	CategoryMedium
	// CategoryFeature is resolved by dropping an optional feature.
	CategoryFeature
	// CategoryLocation is resolved by asking for another output location.
	CategoryLocation
	// CategoryAuto is retried without asking anybody.
	CategoryAuto
	// CategoryCancel is a non-error terminal result.
	CategoryCancel
)

var kindNames = map[Kind]string{
	KindGeneral:             "general",
	KindMediumNone:          "medium_none",
	KindMediumBusy:          "medium_busy",
	KindMediumInvalid:       "medium_invalid",
	KindMediumNoData:        "medium_no_data",
	KindMediumNotRewritable: "medium_not_rewritable",
	KindMediumSpace:         "medium_space",
	KindMediumNeedReloading: "medium_need_reloading",
	KindDriveBusy:           "drive_busy",
	KindImageJoliet:         "image_joliet",
	KindDiskSpace:           "disk_space",
	KindPermission:          "permission",
	KindTmpDirectory:        "tmp_directory",
	KindSlowDMA:             "slow_dma",
	KindMissingAppAndPlugin: "missing_app_and_plugin",
	KindPluginMisbehavior:   "plugin_misbehavior",
	KindOutputNone:          "output_none",
	KindCancel:              "cancel",
	KindDangerous:           "dangerous",
}

// String returns the snake_case name used in logs and the history journal.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind act as an errors.Is marker.
func (k Kind) Error() string {
	return k.String()
}

// Category reports the recovery class of k.
func (k Kind) Category() Category {
	switch k {
	case KindMediumNone, KindMediumBusy, KindMediumInvalid, KindMediumNoData,
		KindMediumNotRewritable, KindMediumSpace, KindMediumNeedReloading:
		return CategoryMedium
	case KindImageJoliet:
		return CategoryFeature
	case KindDiskSpace, KindPermission, KindTmpDirectory:
		return CategoryLocation
	case KindSlowDMA:
		return CategoryAuto
	case KindCancel, KindDangerous:
		return CategoryCancel
	default:
		return CategoryFatal
	}
}

// IsMedium reports whether k describes an unsuitable drive or medium state.
func (k Kind) IsMedium() bool {
	return k.Category() == CategoryMedium
}

// Recoverable reports whether the controller has a retry path for k.
func (k Kind) Recoverable() bool {
	switch k.Category() {
	case CategoryMedium, CategoryFeature, CategoryLocation, CategoryAuto:
		return true
	default:
		return false
	}
}
