package domain

// MediaKind classifies the binary asset attached to a record.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Table names used by the record store and the change channel.
const (
	TableServices     = "services"
	TableProducts     = "products"
	TablePerfumes     = "perfumes"
	TableCourses      = "courses"
	TableGallery      = "gallery"
	TableTestimonials = "testimonials"
	TableUsers        = "users"
	TableCategories   = "categories"
	TableHero         = "hero"
	TableAbout        = "about_me"
)

// Singleton record ids. These tables hold exactly one logical document.
const (
	HeroID  = "hero"
	AboutID = "about-me"
)

// Asset is the optional media attachment shared by all records.
// URL and Kind are either both set or both empty.
type Asset struct {
	URL  string    `json:"url,omitempty"`
	Kind MediaKind `json:"type,omitempty"`
}

// AssetRef returns the attached media reference, empty when none.
func (a Asset) AssetRef() (string, MediaKind) { return a.URL, a.Kind }

// Entity is the contract every syncable record satisfies. Records are
// plain structs with camelCase JSON tags; the id is immutable after
// creation and unique per table.
type Entity interface {
	EntityID() string
	AssetRef() (string, MediaKind)
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Service is a bookable beauty service offered on the site.
type Service struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Duration    string  `json:"duration"`
	Asset
}

func (s Service) EntityID() string { return s.ID }

// Product is a retail item in the shop section.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	CategoryID  string  `json:"categoryId,omitempty"`
	Asset
}

func (p Product) EntityID() string { return p.ID }

// Perfume is listed separately from regular products and carries brand
// and volume fields the generic product does not.
type Perfume struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Brand  string  `json:"brand"`
	Price  float64 `json:"price"`
	Volume string  `json:"volume"`
	Stock  int     `json:"stock"`
	Asset
}

func (p Perfume) EntityID() string { return p.ID }

// Course is a makeup course listing.
type Course struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Duration    string  `json:"duration"`
	Level       string  `json:"level"`
	Asset
}

func (c Course) EntityID() string { return c.ID }

// GalleryItem is one image or clip in the portfolio gallery.
type GalleryItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Caption string `json:"caption,omitempty"`
	Asset
}

func (g GalleryItem) EntityID() string { return g.ID }

// Testimonial is a customer review shown on the public page.
type Testimonial struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Quote   string `json:"quote"`
	Rating  int    `json:"rating"`
	Visible bool   `json:"visible"`
	Asset
}

func (t Testimonial) EntityID() string { return t.ID }

// SiteUser is an admin-panel account.
type SiteUser struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	Role         UserRole `json:"role"`
	PasswordHash string   `json:"passwordHash,omitempty"`
	Asset
}

func (u SiteUser) EntityID() string { return u.ID }

// Category groups products and services.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Asset
}

func (c Category) EntityID() string { return c.ID }

// HeroContent is the singleton hero section of the landing page.
type HeroContent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	CTAText  string `json:"ctaText,omitempty"`
	Asset
}

func (h HeroContent) EntityID() string { return h.ID }

// AboutContent is the singleton about-me section.
type AboutContent struct {
	ID      string `json:"id"`
	Heading string `json:"heading"`
	Body    string `json:"body"`
	Asset
}

func (a AboutContent) EntityID() string { return a.ID }
