package alerts

import (
	"ewarn/internal/models"
)

// Recommendation is the static guidance shown in a warning's detail view
type Recommendation struct {
	Disease  models.Disease `json:"disease"`
	Category string         `json:"category"`
	Title    string         `json:"title"`
	Actions  []string       `json:"actions"`
}

type recommendationKey struct {
	disease  models.Disease
	category string
}

var recommendations = map[recommendationKey]Recommendation{
	{models.DiseaseMalaria, CategoryIndigenousCase}: {
		Title: "Penemuan kasus indigenous di daerah eliminasi",
		Actions: []string{
			"Lakukan penyelidikan epidemiologi 1-2-5 pada setiap kasus indigenous.",
			"Lakukan survei kontak dan pemeriksaan massal di sekitar tempat tinggal kasus.",
			"Lakukan survei vektor dan identifikasi tempat perindukan nyamuk Anopheles.",
			"Pastikan pengobatan standar ACT dan primakuin sampai tuntas.",
		},
	},
	{models.DiseaseMalaria, CategoryIndigenousIncrease}: {
		Title: "Kenaikan kasus indigenous di daerah endemis rendah",
		Actions: []string{
			"Perkuat penemuan kasus aktif melalui kunjungan rumah oleh kader malaria.",
			"Lakukan pemetaan fokus dan klasifikasi fokus penularan.",
			"Distribusikan kelambu berinsektisida di desa dengan kasus indigenous.",
			"Koordinasikan dengan lintas sektor untuk pengendalian lingkungan.",
		},
	},
	{models.DiseaseMalaria, CategoryCaseIncrease}: {
		Title: "Kenaikan total kasus positif malaria",
		Actions: []string{
			"Tingkatkan kesiapan logistik RDT, mikroskop, dan obat anti malaria.",
			"Lakukan penyemprotan rumah (IRS) di wilayah dengan peningkatan kasus.",
			"Intensifkan kampanye penggunaan kelambu dan pencarian pengobatan dini.",
			"Laporkan peningkatan kasus ke dinas kesehatan provinsi.",
		},
	},
	{models.DiseaseDBD, CategoryCaseFatality}: {
		Title: "CFR DBD melebihi 0,5%",
		Actions: []string{
			"Lakukan audit kematian untuk setiap kasus meninggal akibat DBD.",
			"Perkuat tata laksana klinis dan rujukan di fasilitas kesehatan.",
			"Laksanakan gerakan 3M Plus dan pemeriksaan jentik berkala.",
			"Lakukan fogging fokus bila penyelidikan epidemiologi positif.",
		},
	},
	{models.DiseaseLeptospirosis, CategoryCaseFatality}: {
		Title: "CFR leptospirosis melebihi 0,5%",
		Actions: []string{
			"Lakukan penyelidikan epidemiologi pada kasus meninggal.",
			"Tingkatkan deteksi dini dengan RDT leptospirosis di puskesmas.",
			"Lakukan pengendalian tikus dan perbaikan sanitasi lingkungan.",
			"Edukasi masyarakat tentang penggunaan alat pelindung saat banjir.",
		},
	},
}

// LookupRecommendation returns the guidance for a disease and rule category
func LookupRecommendation(disease models.Disease, category string) (Recommendation, bool) {
	r, ok := recommendations[recommendationKey{disease, category}]
	if !ok {
		return Recommendation{}, false
	}
	r.Disease = disease
	r.Category = category
	r.Actions = append([]string(nil), r.Actions...)
	return r, true
}

// RecommendationFor is LookupRecommendation keyed by a warning
func RecommendationFor(w models.Warning) (Recommendation, bool) {
	return LookupRecommendation(w.Disease, w.Category)
}
