package config

import "sort"

// ServiceSeed is a catalog entry created when a store is first set up.
type ServiceSeed struct {
	Name         string
	DefaultPrice float64
	Category     string
}

// ChannelSeed is a referral channel created when a store is first set up.
type ChannelSeed struct {
	Name        string
	ChannelType string
}

// BusinessProfile describes the store flavour: its starting catalog and the
// platforms it takes bookings from. It is passed explicitly to whatever needs it.
type BusinessProfile struct {
	Type         string
	DisplayName  string
	ServiceTypes []ServiceSeed
	Channels     []ChannelSeed
}

// LookupProfile returns a copy of the built-in profile for a BUSINESS_TYPE.
func LookupProfile(businessType string) (BusinessProfile, bool) {
	p, ok := profiles[businessType]
	if !ok {
		return BusinessProfile{}, false
	}
	p.ServiceTypes = append([]ServiceSeed(nil), p.ServiceTypes...)
	p.Channels = append([]ChannelSeed(nil), p.Channels...)
	return p, true
}

// ProfileNames lists the supported business types in order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var profiles = map[string]BusinessProfile{
	"therapy": {
		Type:        "therapy",
		DisplayName: "Therapy clinic",
		ServiceTypes: []ServiceSeed{
			{Name: "head_therapy", DefaultPrice: 30, Category: "therapy"},
			{Name: "physiotherapy", DefaultPrice: 198, Category: "therapy"},
			{Name: "foot_soak", DefaultPrice: 50, Category: "therapy"},
			{Name: "massage", DefaultPrice: 100, Category: "massage"},
			{Name: "tuina", DefaultPrice: 120, Category: "massage"},
			{Name: "gua_sha", DefaultPrice: 80, Category: "therapy"},
			{Name: "cupping", DefaultPrice: 60, Category: "therapy"},
		},
		Channels: []ChannelSeed{
			{Name: "meituan", ChannelType: "platform"},
			{Name: "dianping", ChannelType: "platform"},
		},
	},
	"salon": {
		Type:        "salon",
		DisplayName: "Hair salon",
		ServiceTypes: []ServiceSeed{
			{Name: "haircut", DefaultPrice: 50, Category: "hair"},
			{Name: "wash_and_blow", DefaultPrice: 30, Category: "hair"},
			{Name: "coloring", DefaultPrice: 200, Category: "color"},
			{Name: "perm", DefaultPrice: 300, Category: "styling"},
			{Name: "hair_care", DefaultPrice: 150, Category: "care"},
		},
		Channels: []ChannelSeed{
			{Name: "meituan", ChannelType: "platform"},
		},
	},
	"gym": {
		Type:        "gym",
		DisplayName: "Fitness studio",
		ServiceTypes: []ServiceSeed{
			{Name: "personal_training", DefaultPrice: 300, Category: "training"},
			{Name: "group_class", DefaultPrice: 80, Category: "class"},
			{Name: "day_pass", DefaultPrice: 50, Category: "access"},
		},
	},
}
