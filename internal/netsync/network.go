package netsync

import (
	"slices"
	"strings"

	"github.com/soyeahso/qbridge/internal/quassel"
	"github.com/soyeahso/qbridge/internal/translate"
)

const defaultPrefix = "(ov)@+"

// networkState is what the bridge keeps of a Network object's init data.
type networkState struct {
	nick     string
	supports map[string]string
	channels []translate.Channel
}

func parseNetwork(props quassel.VariantMap) networkState {
	st := networkState{
		nick:     quassel.AsString(props["myNick"]),
		supports: make(map[string]string),
	}
	for k, v := range quassel.AsMap(props["Supports"]) {
		st.supports[strings.ToUpper(k)] = quassel.AsString(v)
	}
	if st.supports["NETWORK"] == "" {
		st.supports["NETWORK"] = quassel.AsString(props["networkName"])
	}

	modes, prefixes := parsePrefix(st.supports["PREFIX"])
	uc := quassel.AsMap(props["IrcUsersAndChannels"])
	if cols := quassel.AsMap(uc["Channels"]); cols != nil {
		st.channels = channelsFromColumns(cols, modes, prefixes)
	} else {
		st.channels = channelsFromMaps(quassel.AsMap(uc["channels"]), modes, prefixes)
	}
	slices.SortFunc(st.channels, func(a, b translate.Channel) int {
		return strings.Compare(a.Name, b.Name)
	})
	return st
}

// channelsFromColumns reads the column layout: one list per property,
// indexed by channel.
func channelsFromColumns(cols quassel.VariantMap, modes, prefixes string) []translate.Channel {
	names := quassel.AsStrings(cols["name"])
	topics := quassel.AsStrings(cols["topic"])
	userModes := quassel.AsList(cols["UserModes"])

	out := make([]translate.Channel, 0, len(names))
	for i, name := range names {
		ch := translate.Channel{Name: name}
		if i < len(topics) {
			ch.Topic = topics[i]
		}
		if i < len(userModes) {
			ch.Users = users(quassel.AsMap(userModes[i]), modes, prefixes)
		}
		out = append(out, ch)
	}
	return out
}

// channelsFromMaps reads the older layout keyed by channel name.
func channelsFromMaps(chans quassel.VariantMap, modes, prefixes string) []translate.Channel {
	out := make([]translate.Channel, 0, len(chans))
	for key, v := range chans {
		m := quassel.AsMap(v)
		name := quassel.AsString(m["name"])
		if name == "" {
			name = key
		}
		out = append(out, translate.Channel{
			Name:  name,
			Topic: quassel.AsString(m["topic"]),
			Users: users(quassel.AsMap(m["UserModes"]), modes, prefixes),
		})
	}
	return out
}

// users renders a nick → mode letters map as NAMES entries, sorted by nick.
func users(userModes quassel.VariantMap, modes, prefixes string) []string {
	out := make([]string, 0, len(userModes))
	for _, nick := range userModes.Keys() {
		out = append(out, modeToPrefix(quassel.AsString(userModes[nick]), modes, prefixes)+nick)
	}
	return out
}

// parsePrefix splits an ISUPPORT PREFIX value such as "(ov)@+" into its
// mode letters and prefix symbols.
func parsePrefix(v string) (modes, prefixes string) {
	if v == "" {
		v = defaultPrefix
	}
	if !strings.HasPrefix(v, "(") {
		return "", ""
	}
	m, p, ok := strings.Cut(v[1:], ")")
	if !ok || len(m) != len(p) {
		return parsePrefix(defaultPrefix)
	}
	return m, p
}

// modeToPrefix maps channel mode letters to their symbols, highest rank
// first. Unknown letters are dropped.
func modeToPrefix(userModes, modes, prefixes string) string {
	var b strings.Builder
	for i := 0; i < len(modes); i++ {
		if strings.IndexByte(userModes, modes[i]) >= 0 {
			b.WriteByte(prefixes[i])
		}
	}
	return b.String()
}
