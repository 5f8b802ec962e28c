package cmd

import (
	"github.com/spf13/cobra"

	"rivwidthcloud/internal/domain"
)

type paramFlags struct {
	values    domain.Parameters
	pointMode bool
}

// register adds the flags shared by one and batch. Defaults are the command line
// defaults; values from the config file apply to flags left unset.
func (p *paramFlags) register(cmd *cobra.Command) {
	def := domain.DefaultParameters()
	flags := cmd.Flags()
	flags.StringVarP(&p.values.OutputFormat, "file_format", "f", def.OutputFormat, "Output file format ('csv' or 'shp')")
	flags.StringVarP(&p.values.WaterMethod, "water_method", "w", def.WaterMethod, "Water classification method ('Jones2019' or 'Zou2018')")
	flags.Float64VarP(&p.values.MaxDistance, "max_distance", "d", def.MaxDistance, "Maximum distance in meters")
	flags.Float64VarP(&p.values.FillSize, "fill_size", "i", def.FillSize, "Fill size in pixels")
	flags.Float64VarP(&p.values.BranchRemovalDistance, "max_distance_branch_removal", "b", def.BranchRemovalDistance, "Maximum distance for branch removal in pixels")
	flags.StringVarP(&p.values.OutputFolder, "output_folder", "o", def.OutputFolder, "Existing output folder name. Default: root")
	flags.BoolVarP(&p.pointMode, "point_mode", "p", false, "Enable the point mode")
	flags.Float64VarP(&p.values.Radius, "radius", "r", def.Radius, "Radius of the buffered region around the point location")
}

// resolve merges config defaults with explicitly set flags.
func (p *paramFlags) resolve(cmd *cobra.Command, defaults domain.Parameters) (*domain.Parameters, error) {
	params := defaults
	flags := cmd.Flags()

	if flags.Changed("file_format") {
		params.OutputFormat = p.values.OutputFormat
	}
	if flags.Changed("water_method") {
		params.WaterMethod = p.values.WaterMethod
	}
	if flags.Changed("max_distance") {
		params.MaxDistance = p.values.MaxDistance
	}
	if flags.Changed("fill_size") {
		params.FillSize = p.values.FillSize
	}
	if flags.Changed("max_distance_branch_removal") {
		params.BranchRemovalDistance = p.values.BranchRemovalDistance
	}
	if flags.Changed("output_folder") {
		params.OutputFolder = p.values.OutputFolder
	}
	if flags.Changed("radius") {
		params.Radius = p.values.Radius
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

func (p *paramFlags) mode() domain.Mode {
	if p.pointMode {
		return domain.ModePoint
	}
	return domain.ModeScene
}
