// Package burnerr defines the failure taxonomy shared by the pipeline, the
// burn controller and the concrete stages.
//
// Every failure carries a Kind; each Kind carries a Category that tells the
// controller which recovery applies (reload the medium, drop a feature, pick
// another location, retry silently, or give up). Result codes that are not
// failures, such as "nothing to do" or "retry", are exported sentinels.
package burnerr
