package seed

import (
	"time"

	"crowdfund/internal/projects"
	"crowdfund/internal/utils"
	"crowdfund/pkg/types"
)

type demoUser struct {
	ID         string
	Email      string
	GivenName  string
	FamilyName string
	UserType   types.UserType
	Bio        string
	Address    types.ShippingAddress
}

var demoUsers = []demoUser{
	{ID: "11111111-1111-1111-1111-111111111111", Email: "ava.williams+seed1@example.com", GivenName: "Ava", FamilyName: "Williams", UserType: types.UserTypeCreator, Bio: "Hardware tinkerer building kits for classrooms."},
	{ID: "22222222-2222-2222-2222-222222222222", Email: "liam.johnson+seed2@example.com", GivenName: "Liam", FamilyName: "Johnson", UserType: types.UserTypeCreator, Bio: "Indie game developer."},
	{ID: "33333333-3333-3333-3333-333333333333", Email: "noah.brown+seed3@example.com", GivenName: "Noah", FamilyName: "Brown", UserType: types.UserTypeCreator, Bio: "Ceramicist and community studio organizer."},
	{ID: "44444444-4444-4444-4444-444444444444", Email: "mia.davis+seed4@example.com", GivenName: "Mia", FamilyName: "Davis", UserType: types.UserTypeBacker, Address: types.ShippingAddress{Name: "Mia Davis", Line1: "12 Elm St", City: "Portland", State: "OR", PostalCode: "97205", Country: "US"}},
	{ID: "55555555-5555-5555-5555-555555555555", Email: "elijah.garcia+seed5@example.com", GivenName: "Elijah", FamilyName: "Garcia", UserType: types.UserTypeBacker, Address: types.ShippingAddress{Name: "Elijah Garcia", Line1: "400 Congress Ave", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}},
	{ID: "66666666-6666-6666-6666-666666666666", Email: "olivia.miller+seed6@example.com", GivenName: "Olivia", FamilyName: "Miller", UserType: types.UserTypeBacker, Address: types.ShippingAddress{Name: "Olivia Miller", Line1: "9 Queen St", City: "Toronto", State: "ON", PostalCode: "M5H 2N2", Country: "CA"}},
	{ID: "77777777-7777-7777-7777-777777777777", Email: "ethan.moore+seed7@example.com", GivenName: "Ethan", FamilyName: "Moore", UserType: types.UserTypeBacker, Address: types.ShippingAddress{Name: "Ethan Moore", Line1: "1 Market St", City: "San Francisco", State: "CA", PostalCode: "94105", Country: "US"}},
	{ID: "88888888-8888-8888-8888-888888888888", Email: "sophia.taylor+seed8@example.com", GivenName: "Sophia", FamilyName: "Taylor", UserType: types.UserTypeBacker, Address: types.ShippingAddress{Name: "Sophia Taylor", Line1: "22 Baker St", City: "London", PostalCode: "NW1 6XE", Country: "GB"}},
}

func demoBackers() []demoUser {
	out := make([]demoUser, 0, len(demoUsers))
	for _, user := range demoUsers {
		if user.UserType == types.UserTypeBacker {
			out = append(out, user)
		}
	}
	return out
}

type demoMilestone struct {
	Title             string
	Description       string
	FundingPercentage int
	MonthsOut         int
	Deliverables      []string
}

type demoProject struct {
	CreatorID  string
	Input      projects.ProjectInput
	Tiers      []projects.TierInput
	Milestones []demoMilestone
}

// extra support added on top of a tier pledge
var demoTips = []string{"$0", "$5", "$12.50", "$25", "$100"}

var estimatedDelivery = utils.TimePtr(time.Now().AddDate(0, 8, 0).Truncate(24 * time.Hour))

var demoProjects = []demoProject{
	{
		CreatorID: "11111111-1111-1111-1111-111111111111",
		Input: projects.ProjectInput{
			Title:               "Open Robotics Classroom Kit",
			Tagline:             "A build-it-yourself robot arm for every classroom",
			Description:         "Laser cut parts, open firmware and a full curriculum for middle schools.",
			Category:            "technology",
			FundingGoalCents:    2_500_000,
			FundingDurationDays: 45,
		},
		Tiers: []projects.TierInput{
			{Title: "Supporter", Description: "Your name in the credits.", PledgeAmountCents: 1_000},
			{Title: "Early bird kit", Description: "One kit at the launch price.", PledgeAmountCents: 12_900, IsLimited: true, QuantityLimit: 3, EstimatedDelivery: estimatedDelivery, ShippingRequired: true},
			{Title: "Classroom pack", Description: "Ten kits and teacher training.", PledgeAmountCents: 110_000, IsLimited: true, QuantityLimit: 20, EstimatedDelivery: estimatedDelivery, ShippingRequired: true},
		},
		Milestones: []demoMilestone{
			{Title: "Final prototype", Description: "Freeze the mechanical design.", FundingPercentage: 30, MonthsOut: 2, Deliverables: []string{"CAD files", "Test report"}},
			{Title: "Pilot schools", Description: "Run the curriculum in three schools.", FundingPercentage: 30, MonthsOut: 4, Deliverables: []string{"Pilot feedback"}},
			{Title: "Production run", Description: "Manufacture and ship kits.", FundingPercentage: 40, MonthsOut: 8, Deliverables: []string{"Shipping confirmations"}},
		},
	},
	{
		CreatorID: "22222222-2222-2222-2222-222222222222",
		Input: projects.ProjectInput{
			Title:               "Lanternfall",
			Tagline:             "A hand-drawn puzzle adventure",
			Description:         "Guide a lamplighter through a city that forgot the night.",
			Category:            "games",
			FundingGoalCents:    4_000_000,
			FundingDurationDays: 30,
		},
		Tiers: []projects.TierInput{
			{Title: "Digital copy", Description: "The game on release day.", PledgeAmountCents: 1_800},
			{Title: "Collector's edition", Description: "Boxed copy with art book.", PledgeAmountCents: 7_500, IsLimited: true, QuantityLimit: 50, EstimatedDelivery: estimatedDelivery, ShippingRequired: true},
		},
		Milestones: []demoMilestone{
			{Title: "Vertical slice", FundingPercentage: 25, MonthsOut: 3, Deliverables: []string{"Playable demo"}},
			{Title: "Content complete", FundingPercentage: 50, MonthsOut: 9},
			{Title: "Launch", FundingPercentage: 25, MonthsOut: 12, Deliverables: []string{"Store release"}},
		},
	},
	{
		CreatorID: "33333333-3333-3333-3333-333333333333",
		Input: projects.ProjectInput{
			Title:               "Neighborhood Kiln",
			Tagline:             "A shared wood-fired kiln for our community studio",
			Description:         "Build a kiln that local potters can fire together every season.",
			Category:            "crafts",
			FundingGoalCents:    1_200_000,
			FundingDurationDays: 60,
		},
		Tiers: []projects.TierInput{
			{Title: "Firing slot", Description: "Space for your pieces in the first firing.", PledgeAmountCents: 4_000},
			{Title: "Handmade mug", Description: "A mug from the first firing.", PledgeAmountCents: 6_000, ShippingRequired: true, EstimatedDelivery: estimatedDelivery},
		},
		Milestones: []demoMilestone{
			{Title: "Site and permits", FundingPercentage: 20, MonthsOut: 1},
			{Title: "Kiln build", FundingPercentage: 60, MonthsOut: 4, Deliverables: []string{"Build photos"}},
			{Title: "First firing", FundingPercentage: 20, MonthsOut: 6, Deliverables: []string{"Firing log"}},
		},
	},
}
