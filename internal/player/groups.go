package player

import (
	"math"
	"sort"

	"github.com/vidfriends/watchparty/internal/models"
	"github.com/vidfriends/watchparty/internal/timecode"
)

// ActiveWindow is how close the playback position must be to a group's second
// for the group to be highlighted.
const ActiveWindow = 0.75

// MaxGroupAvatars is how many avatars a group shows before collapsing the rest
// into an overflow count.
const MaxGroupAvatars = 3

// UnknownUsername labels markers whose user no longer resolves.
const UnknownUsername = "Unknown User"

// Group is the markers placed in one whole second of a video, in arrival order.
type Group struct {
	Second  int                 `json:"second"`
	Markers []models.MarkerView `json:"markers"`
}

// Avatar is one reacting user shown on a group.
type Avatar struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// GroupView is the scrubber rendering of a group.
type GroupView struct {
	Second   int      `json:"second"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
	Avatars  []Avatar `json:"avatars"`
	Overflow int      `json:"overflow"`
}

// SecondOf returns the group key of a timestamp.
func SecondOf(timestamp float64) int {
	if timestamp < 0 {
		return 0
	}
	return int(math.Floor(timestamp))
}

// GroupMarkers clusters markers by whole second. Groups are ordered by second;
// markers keep their input order within a group.
func GroupMarkers(markers []models.MarkerView) []Group {
	index := make(map[int]int)
	var groups []Group
	for _, m := range markers {
		key := SecondOf(m.Timestamp)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Second: key})
		}
		groups[i].Markers = append(groups[i].Markers, m)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Second < groups[j].Second })
	return groups
}

// ActiveGroup returns the first group within ActiveWindow of position.
func ActiveGroup(groups []Group, position float64) (Group, bool) {
	for _, g := range groups {
		if math.Abs(position-float64(g.Second)) < ActiveWindow {
			return g, true
		}
	}
	return Group{}, false
}

// View renders g for the scrubber.
func (g Group) View() GroupView {
	v := GroupView{Second: g.Second, Label: timecode.Format(float64(g.Second)), Count: len(g.Markers)}
	for i, m := range g.Markers {
		if i == MaxGroupAvatars {
			v.Overflow = len(g.Markers) - MaxGroupAvatars
			break
		}
		v.Avatars = append(v.Avatars, Avatar{UserID: m.UserID, Username: m.Username, AvatarURL: m.AvatarURL})
	}
	return v
}

// Views renders every group.
func Views(groups []Group) []GroupView {
	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, g.View())
	}
	return views
}

func withFallbackNames(markers []models.MarkerView) []models.MarkerView {
	for i := range markers {
		if markers[i].Username == "" {
			markers[i].Username = UnknownUsername
		}
	}
	return markers
}
