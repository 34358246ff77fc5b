package registry

// Default returns the registry for the marketing warehouse schema. New data
// sources for a metric are appended to its list and act as fallbacks.
func Default() *Registry {
	return New(
		Definition{
			Metric: Metric{ID: FBBars, Name: "facebook_daily_impressions", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "facebook_insights", Date: "Report__Start_date", Value: "Performance__Impressions"},
				{Table: "facebook_insights", Date: "Report__Date", Value: "Performance__Reach"},
			},
		},
		Definition{
			Metric: Metric{ID: IGBars, Name: "instagram_daily_followers", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Engagement__Followers"},
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Performance__Reach"},
				{Table: "instagram_followers", Date: "By_Day", Value: "Followers"},
			},
		},
		Definition{
			Metric: Metric{ID: TikTokBars, Name: "tiktok_daily_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "tiktok_insights", Date: "By_Day", Value: "Views"},
			},
		},
		Definition{
			Metric: Metric{ID: DailyInstalls, Name: "daily_installs", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "installed_audience", Date: "date", Value: "installed_audience__all_countries"},
			},
		},
		Definition{
			Metric: Metric{ID: InstalledBase, Name: "installed_base", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "installed_base", Date: "date", Value: "installed_base__all_countries"},
			},
		},
		Definition{
			Metric: Metric{ID: IGViews, Name: "instagram_daily_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Engagement__Views"},
			},
		},
		Definition{
			Metric: Metric{ID: IGReach, Name: "instagram_daily_reach", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Performance__Reach"},
			},
		},
		Definition{
			Metric: Metric{ID: IGEngagements, Name: "instagram_daily_engagements", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Engagement__Interactions"},
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Engagement__Engagements"},
			},
		},
		Definition{
			Metric: Metric{ID: FBViews, Name: "facebook_daily_page_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "facebook_insights", Date: "Report__Date", Value: "Engagement__Page_views"},
			},
		},
		Definition{
			Metric: Metric{ID: FBReach, Name: "facebook_daily_reach", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "facebook_insights", Date: "Report__Date", Value: "Performance__Reach"},
			},
		},
		Definition{
			Metric: Metric{ID: FBEngagements, Name: "facebook_daily_engagements", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "facebook_insights", Date: "Report__Date", Value: "Engagement__Post_engagements"},
				{Table: "facebook_insights", Date: "Report__Date", Value: "Engagement__Engagements"},
			},
		},
		Definition{
			Metric: Metric{ID: TikTokViews, Name: "tiktok_daily_impressions", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "tiktok_insights", Date: "By_Day", Value: "Impression"},
				{Table: "tiktok_insights", Date: "By_Day", Value: "Views"},
			},
		},
		Definition{
			Metric: Metric{ID: CountryFacebook, Name: "facebook_audience_by_country", Kind: KindCategorical},
			Candidates: []Candidate{
				{Table: "facebook_demographics", Label: "country", Value: "percent"},
			},
		},
		Definition{
			Metric: Metric{ID: CountryInstagram, Name: "instagram_audience_by_country", Kind: KindCategorical},
			Candidates: []Candidate{
				{Table: "instagram_demographics", Label: "country", Value: "percent"},
				{Table: "instagram_demographics", Label: "Audience__Country", Value: "Engagement__Followers"},
			},
		},
		Definition{
			Metric: Metric{ID: AudienceCountry, Name: "instagram_followers_by_country", Kind: KindCategorical},
			Candidates: []Candidate{
				{Table: "instagram_demographics", Label: "Audience__Country", Value: "Engagement__Followers"},
				{Table: "instagram_demographics", Label: "country", Value: "percent"},
			},
		},
		Definition{
			Metric: Metric{ID: OSSplit, Name: "installs_by_os", Kind: KindScalar},
			Candidates: []Candidate{
				{Table: "device_acquisition", Value: "android", Secondary: "ios"},
				{Table: "device_acquisition", Value: "device_acquisition__android", Secondary: "device_acquisition__ios"},
			},
		},
		Definition{
			Metric: Metric{ID: ChannelFacebook, Name: "facebook_channel_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "atfalna_social_media", Date: "date", Value: "fb_views"},
			},
		},
		Definition{
			Metric: Metric{ID: ChannelInstagram, Name: "instagram_channel_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "ig_data", Date: "date", Value: "ig_views"},
			},
		},
		Definition{
			Metric: Metric{ID: ChannelTikTok, Name: "tiktok_channel_views", Kind: KindTimeSeries},
			Candidates: []Candidate{
				{Table: "tiktok_insights", Date: "By_Day", Value: "Views"},
			},
		},
		Definition{
			Metric: Metric{ID: AudienceAge, Name: "instagram_audience_by_age", Kind: KindCategorical},
			Candidates: []Candidate{
				{Table: "instagram_ageandgender", Label: "age_gender", Value: "women", Secondary: "men"},
			},
		},
	)
}
