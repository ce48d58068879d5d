// Package media models optical drives and the discs inside them.
//
// Drive is the narrow interface the burn engine consumes. LinuxDrive is the
// production implementation: it probes discs with the CDROM ioctls and
// dvd+rw-mediainfo, serialises access with a per-device lock file, and
// unmounts or ejects through the usual system utilities. Watcher turns udev
// netlink events into per-device media notifications.
package media
